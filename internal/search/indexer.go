// Package search keeps the public request index in Meilisearch current.
package search

import (
	"context"
	"fmt"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/models"
)

// Document is the indexed projection of a request. Private fields are blanked.
type Document struct {
	ID                   string `json:"id"`
	AgencyEIN            string `json:"agency_ein"`
	Title                string `json:"title"`
	AgencyRequestSummary string `json:"agency_request_summary"`
	Description          string `json:"description"`
	Status               string `json:"status"`
	SubmissionMethod     string `json:"submission_method"`
	SubmittedAt          int64  `json:"submitted_at"`
	DueDate              int64  `json:"due_date"`
	TitlePrivate         bool   `json:"title_private"`
}

// NewDocument projects a request into its search document.
func NewDocument(r models.Request) Document {
	doc := Document{
		ID:               r.ID,
		AgencyEIN:        r.AgencyEIN,
		Description:      r.Description,
		Status:           string(r.Status),
		SubmissionMethod: string(r.SubmissionMethod),
		SubmittedAt:      r.SubmittedAt.Unix(),
		DueDate:          r.DueDate.Unix(),
		TitlePrivate:     r.TitlePrivate,
	}
	if !r.TitlePrivate {
		doc.Title = r.Title
	}
	if r.AgencyRequestSummary != nil && !r.AgencyRequestSummaryPrivate {
		doc.AgencyRequestSummary = *r.AgencyRequestSummary
	}
	return doc
}

// Indexer writes request documents to one Meilisearch index.
type Indexer struct {
	add    func(ctx context.Context, docs []Document) error
	uid    string
	logger *zap.Logger
}

// NewIndexer connects to Meilisearch and ensures the index exists. An
// unreachable server is logged; documents are still attempted on each change.
func NewIndexer(url, apiKey, uid string, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if uid == "" {
		uid = "requests"
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))
	if _, err := client.CreateIndex(&meili.IndexConfig{Uid: uid, PrimaryKey: "id"}); err != nil {
		logger.Warn("meilisearch create index failed (may already exist)", zap.String("index", uid), zap.Error(err))
	} else {
		filterable := []interface{}{"agency_ein", "status", "submission_method"}
		if _, err := client.Index(uid).UpdateFilterableAttributes(&filterable); err != nil {
			logger.Warn("meilisearch filterable attributes", zap.String("index", uid), zap.Error(err))
		}
	}
	index := client.Index(uid)
	add := func(ctx context.Context, docs []Document) error {
		_, err := index.AddDocumentsWithContext(ctx, docs, nil)
		return err
	}
	return &Indexer{add: add, uid: uid, logger: logger}
}

// IndexRequest upserts the request document. Cancelling ctx aborts the call.
func (i *Indexer) IndexRequest(ctx context.Context, request models.Request) error {
	if err := i.add(ctx, []Document{NewDocument(request)}); err != nil {
		return fmt.Errorf("search: index %s: %w", request.ID, err)
	}
	return nil
}
