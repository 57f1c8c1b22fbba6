package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

const acknowledgmentIndex = "uq_determinations_acknowledgment"

const responseSelect = `SELECT r.id, r.request_id, r.type, r.privacy, r.created_at, r.updated_at, r.deleted, r.is_editable,
       n.content AS note_content,
       f.title AS file_title, f.name AS file_name, f.mime_type AS file_mime_type, f.size AS file_size,
       f.object_key AS file_object_key, f.hash AS file_hash,
       l.title AS link_title, l.url AS link_url,
       i.content AS instruction_content,
       d.dtype AS determination_dtype, d.reason AS determination_reason, d.date AS determination_date,
       e.to_addr AS email_to, e.cc AS email_cc, e.bcc AS email_bcc, e.subject AS email_subject, e.body AS email_body
FROM responses r
LEFT JOIN notes n ON n.id = r.id
LEFT JOIN files f ON f.id = r.id
LEFT JOIN links l ON l.id = r.id
LEFT JOIN instructions i ON i.id = r.id
LEFT JOIN determinations d ON d.id = r.id
LEFT JOIN emails e ON e.id = r.id`

type responseRow struct {
	ID        string                 `db:"id"`
	RequestID string                 `db:"request_id"`
	Type      models.ResponseKind    `db:"type"`
	Privacy   models.ResponsePrivacy `db:"privacy"`
	CreatedAt time.Time              `db:"created_at"`
	UpdatedAt time.Time              `db:"updated_at"`
	Deleted   bool                   `db:"deleted"`
	Editable  bool                   `db:"is_editable"`

	NoteContent sql.NullString `db:"note_content"`

	FileTitle     sql.NullString `db:"file_title"`
	FileName      sql.NullString `db:"file_name"`
	FileMimeType  sql.NullString `db:"file_mime_type"`
	FileSize      sql.NullInt64  `db:"file_size"`
	FileObjectKey sql.NullString `db:"file_object_key"`
	FileHash      sql.NullString `db:"file_hash"`

	LinkTitle sql.NullString `db:"link_title"`
	LinkURL   sql.NullString `db:"link_url"`

	InstructionContent sql.NullString `db:"instruction_content"`

	DeterminationKind   sql.NullString `db:"determination_dtype"`
	DeterminationReason sql.NullString `db:"determination_reason"`
	DeterminationDate   sql.NullTime   `db:"determination_date"`

	EmailTo      sql.NullString `db:"email_to"`
	EmailCC      sql.NullString `db:"email_cc"`
	EmailBCC     sql.NullString `db:"email_bcc"`
	EmailSubject sql.NullString `db:"email_subject"`
	EmailBody    sql.NullString `db:"email_body"`
}

func (row responseRow) toModel() (*models.Response, error) {
	resp := &models.Response{
		ID:        row.ID,
		RequestID: row.RequestID,
		Privacy:   row.Privacy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Deleted:   row.Deleted,
		Editable:  row.Editable,
	}
	switch row.Type {
	case models.ResponseKindNote:
		resp.Payload = &models.Note{Content: row.NoteContent.String}
	case models.ResponseKindFile:
		resp.Payload = &models.File{
			Title:     row.FileTitle.String,
			Name:      row.FileName.String,
			MimeType:  row.FileMimeType.String,
			Size:      row.FileSize.Int64,
			ObjectKey: row.FileObjectKey.String,
			Hash:      row.FileHash.String,
		}
	case models.ResponseKindLink:
		resp.Payload = &models.Link{Title: row.LinkTitle.String, URL: row.LinkURL.String}
	case models.ResponseKindInstruction:
		resp.Payload = &models.Instruction{Content: row.InstructionContent.String}
	case models.ResponseKindDetermination:
		det := &models.Determination{DeterminationKind: models.DeterminationKind(row.DeterminationKind.String)}
		if row.DeterminationReason.Valid {
			reason := row.DeterminationReason.String
			det.Reason = &reason
		}
		if row.DeterminationDate.Valid {
			due := row.DeterminationDate.Time.UTC()
			det.DueDate = &due
		}
		resp.Payload = det
	case models.ResponseKindEmail:
		resp.Payload = &models.Email{
			To:      row.EmailTo.String,
			CC:      row.EmailCC.String,
			BCC:     row.EmailBCC.String,
			Subject: row.EmailSubject.String,
			Body:    row.EmailBody.String,
		}
	default:
		return nil, fmt.Errorf("response %s has unknown type %q", row.ID, row.Type)
	}
	return resp, nil
}

// ResponseRepository persists response envelopes and their variant rows.
type ResponseRepository struct {
	db sqlx.ExtContext
}

// NewResponseRepository constructs the repository over a database handle or transaction.
func NewResponseRepository(db sqlx.ExtContext) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// CreateResponse inserts the envelope followed by the variant row. A second
// acknowledgment for the same request is reported as ErrAlreadyAcknowledged.
func (r *ResponseRepository) CreateResponse(ctx context.Context, response *models.Response) error {
	if response.Payload == nil {
		return fmt.Errorf("create response: missing payload")
	}
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if response.CreatedAt.IsZero() {
		response.CreatedAt = now
	}
	if response.UpdatedAt.IsZero() {
		response.UpdatedAt = response.CreatedAt
	}

	const envelope = `INSERT INTO responses (id, request_id, type, privacy, created_at, updated_at, deleted, is_editable)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, envelope,
		response.ID, response.RequestID, response.Kind(), response.Privacy,
		response.CreatedAt, response.UpdatedAt, response.Deleted, response.Editable,
	); err != nil {
		return fmt.Errorf("create response: %w", err)
	}

	var (
		query string
		args  []interface{}
	)
	switch p := response.Payload.(type) {
	case *models.Note:
		query = `INSERT INTO notes (id, content) VALUES ($1, $2)`
		args = []interface{}{response.ID, p.Content}
	case *models.File:
		query = `INSERT INTO files (id, title, name, mime_type, size, object_key, hash) VALUES ($1, $2, $3, $4, $5, $6, $7)`
		args = []interface{}{response.ID, p.Title, p.Name, p.MimeType, p.Size, p.ObjectKey, p.Hash}
	case *models.Link:
		query = `INSERT INTO links (id, title, url) VALUES ($1, $2, $3)`
		args = []interface{}{response.ID, p.Title, p.URL}
	case *models.Instruction:
		query = `INSERT INTO instructions (id, content) VALUES ($1, $2)`
		args = []interface{}{response.ID, p.Content}
	case *models.Determination:
		var due interface{}
		if p.DueDate != nil {
			due = p.DueDate.UTC()
		}
		query = `INSERT INTO determinations (id, request_id, dtype, reason, date) VALUES ($1, $2, $3, $4, $5)`
		args = []interface{}{response.ID, response.RequestID, p.DeterminationKind, p.Reason, due}
	case *models.Email:
		query = `INSERT INTO emails (id, to_addr, cc, bcc, subject, body) VALUES ($1, $2, $3, $4, $5, $6)`
		args = []interface{}{response.ID, p.To, p.CC, p.BCC, p.Subject, p.Body}
	default:
		return fmt.Errorf("create response: unsupported payload %T", response.Payload)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err, acknowledgmentIndex) {
			return appErrors.Clone(appErrors.ErrAlreadyAcknowledged, "request already acknowledged")
		}
		return fmt.Errorf("create %s response: %w", response.Kind(), err)
	}
	return nil
}

// GetResponse fetches a response with its payload.
func (r *ResponseRepository) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	var row responseRow
	if err := sqlx.GetContext(ctx, r.db, &row, responseSelect+` WHERE r.id = $1`, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// LockResponse fetches a response and locks its envelope row.
func (r *ResponseRepository) LockResponse(ctx context.Context, id string) (*models.Response, error) {
	var row responseRow
	if err := sqlx.GetContext(ctx, r.db, &row, responseSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// ListResponses returns responses for a request ordered by creation time.
func (r *ResponseRepository) ListResponses(ctx context.Context, filter models.ResponseFilter) ([]models.Response, error) {
	builder := strings.Builder{}
	builder.WriteString(responseSelect)
	args := []interface{}{filter.RequestID}
	conditions := []string{"r.request_id = $1"}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "r.deleted = FALSE")
	}
	if filter.PublicOnly {
		args = append(args, models.PrivacyReleaseAndPublic)
		conditions = append(conditions, fmt.Sprintf("r.privacy = $%d", len(args)))
	}
	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, kind := range filter.Kinds {
			args = append(args, kind)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("r.type IN (%s)", strings.Join(placeholders, ",")))
	}
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY r.created_at ASC, r.id ASC")

	var rows []responseRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	responses := make([]models.Response, 0, len(rows))
	for _, row := range rows {
		resp, err := row.toModel()
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}
	return responses, nil
}

// HasLiveDetermination reports whether a non-deleted determination of kind exists for the request.
func (r *ResponseRepository) HasLiveDetermination(ctx context.Context, requestID string, kind models.DeterminationKind) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM determinations d JOIN responses r ON r.id = d.id
	WHERE d.request_id = $1 AND d.dtype = $2 AND r.deleted = FALSE)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, requestID, kind); err != nil {
		return false, fmt.Errorf("check determination: %w", err)
	}
	return exists, nil
}

// SoftDeleteResponse flags an editable response as deleted.
func (r *ResponseRepository) SoftDeleteResponse(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE responses SET deleted = TRUE, updated_at = $2 WHERE id = $1 AND deleted = FALSE AND is_editable = TRUE`
	result, err := r.db.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return expectRow(result, "delete response")
}
