package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

// Tx is the set of writes a workflow operation may perform inside one
// transaction. Every method runs against the same *sqlx.Tx.
type Tx interface {
	LockRequest(ctx context.Context, id string) (*models.Request, error)
	CreateRequest(ctx context.Context, request *models.Request) error
	UpdateRequestState(ctx context.Context, params models.UpdateRequestStateParams) error
	UpdateRequestPrivacy(ctx context.Context, id string, titlePrivate, summaryPrivate bool) error

	CreateResponse(ctx context.Context, response *models.Response) error
	LockResponse(ctx context.Context, id string) (*models.Response, error)
	SoftDeleteResponse(ctx context.Context, id string, at time.Time) error
	HasLiveDetermination(ctx context.Context, requestID string, kind models.DeterminationKind) (bool, error)

	CreateEvent(ctx context.Context, event *models.Event) error

	LockUserRequest(ctx context.Context, requestID, userGUID string) (*models.UserRequest, error)
	CreateUserRequest(ctx context.Context, ur *models.UserRequest) error
	UpdateUserRequest(ctx context.Context, ur *models.UserRequest) error
	DeleteUserRequest(ctx context.Context, requestID, userGUID string) error
	FindPointOfContact(ctx context.Context, requestID string) (*models.UserRequest, error)

	NextRequestNumber(ctx context.Context, agencyEIN string, year int) (int, error)
	ResetRequestNumber(ctx context.Context, agencyEIN string, year int) (previous, next int, err error)
}

type sqlTx struct {
	*RequestRepository
	*ResponseRepository
	*EventRepository
	*UserRequestRepository
	*AgencyRepository
}

// Store runs workflow operations in database transactions.
type Store struct {
	db *sqlx.DB
}

// NewStore constructs the store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. Serialization and deadlock failures are reported as
// retryable conflicts.
func (s *Store) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			err = translateTxError(err)
		}
	}()

	if err = fn(newSQLTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func newSQLTx(tx *sqlx.Tx) *sqlTx {
	return &sqlTx{
		RequestRepository:     NewRequestRepository(tx),
		ResponseRepository:    NewResponseRepository(tx),
		EventRepository:       NewEventRepository(tx),
		UserRequestRepository: NewUserRequestRepository(tx),
		AgencyRepository:      NewAgencyRepository(tx),
	}
}

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

func translateTxError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return appErrors.Wrap(err, appErrors.ErrTransactionConflict.Code, appErrors.ErrTransactionConflict.Status, appErrors.ErrTransactionConflict.Message)
		}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}
