package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/storage"
)

type fakeResponseSrv struct {
	calls     []string
	lastActor string
	deleted   string
	privacy   dto.EditPrivacyPayload
	err       error
}

func (f *fakeResponseSrv) add(name, actor string, payload models.Payload) (*models.Response, error) {
	f.calls = append(f.calls, name)
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &models.Response{ID: "resp-1", Privacy: models.PrivacyPrivate, Payload: payload}, nil
}

func (f *fakeResponseSrv) AddNote(_ context.Context, actor, _ string, req dto.NotePayload) (*models.Response, error) {
	return f.add("note", actor, &models.Note{Content: req.Content})
}

func (f *fakeResponseSrv) AddFile(_ context.Context, actor, _ string, req dto.FilePayload) (*models.Response, error) {
	return f.add("file", actor, &models.File{Title: req.Title, ObjectKey: req.ObjectKey})
}

func (f *fakeResponseSrv) AddLink(_ context.Context, actor, _ string, req dto.LinkPayload) (*models.Response, error) {
	return f.add("link", actor, &models.Link{Title: req.Title, URL: req.URL})
}

func (f *fakeResponseSrv) AddInstruction(_ context.Context, actor, _ string, req dto.InstructionPayload) (*models.Response, error) {
	return f.add("instruction", actor, &models.Instruction{Content: req.Content})
}

func (f *fakeResponseSrv) RecordEmail(_ context.Context, actor, _ string, req dto.EmailPayload) (*models.Response, error) {
	return f.add("email", actor, &models.Email{To: req.To, Subject: req.Subject, Body: req.Body})
}

func (f *fakeResponseSrv) DeleteResponse(_ context.Context, actor, _, responseID string) error {
	f.lastActor, f.deleted = actor, responseID
	return f.err
}

func (f *fakeResponseSrv) EditRequestPrivacy(_ context.Context, actor, id string, req dto.EditPrivacyPayload) (*models.Request, error) {
	f.lastActor, f.privacy = actor, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Request{ID: id, TitlePrivate: req.Title != nil && *req.Title}, nil
}

func (f *fakeResponseSrv) FileDownloadToken(_ context.Context, actor, _, _ string) (*dto.DownloadToken, error) {
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DownloadToken{Token: "tok", ExpiresAt: "2024-06-03T14:10:00Z"}, nil
}

type presignStub struct {
	key    string
	expiry time.Duration
	err    error
}

func (p *presignStub) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	p.key, p.expiry = key, expiry
	if p.err != nil {
		return "", p.err
	}
	return "https://files.example/foil/" + key + "?sig=1", nil
}

func TestResponseHandlerAddsEachVariant(t *testing.T) {
	srv := &fakeResponseSrv{}
	h := NewResponseHandler(srv, nil, nil)

	requests := []struct {
		run  func(*ResponseHandler, *gin.Context)
		body interface{}
	}{
		{(*ResponseHandler).AddNote, dto.NotePayload{Content: "called requester"}},
		{(*ResponseHandler).AddFile, dto.FilePayload{Title: "Memo", Name: "memo.pdf", MimeType: "application/pdf", ObjectKey: "requests/memo.pdf"}},
		{(*ResponseHandler).AddLink, dto.LinkPayload{Title: "Portal", URL: "https://example.org"}},
		{(*ResponseHandler).AddInstruction, dto.InstructionPayload{Content: "visit room 2"}},
		{(*ResponseHandler).RecordEmail, dto.EmailPayload{To: "a@example.org", Subject: "Update", Body: "hi"}},
	}
	for _, tc := range requests {
		c, rec := newTestContext(http.MethodPost, "/", tc.body, "officer-1")
		withParams(c, "id", "FOIL-2024-0002-00001")
		tc.run(h, c)
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, []string{"note", "file", "link", "instruction", "email"}, srv.calls)
}

func TestResponseHandlerForbiddenNote(t *testing.T) {
	h := NewResponseHandler(&fakeResponseSrv{err: appErrors.Clone(appErrors.ErrForbidden, "missing permission add_link")}, nil, nil)
	c, rec := newTestContext(http.MethodPost, "/", dto.LinkPayload{Title: "x", URL: "https://x.org"}, "requester-1")
	h.AddLink(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error.Message, "add_link")
}

func TestResponseHandlerDelete(t *testing.T) {
	srv := &fakeResponseSrv{}
	h := NewResponseHandler(srv, nil, nil)

	c, rec := newTestContext(http.MethodDelete, "/", nil, "officer-1")
	withParams(c, "id", "FOIL-2024-0002-00001", "responseId", "resp-9")
	h.Delete(c)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "resp-9", srv.deleted)
}

func TestResponseHandlerEditPrivacy(t *testing.T) {
	srv := &fakeResponseSrv{}
	h := NewResponseHandler(srv, nil, nil)

	c, rec := newTestContext(http.MethodPatch, "/", `{"title":true}`, "officer-1")
	withParams(c, "id", "FOIL-2024-0002-00001")
	h.EditPrivacy(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.privacy.Title)
	assert.True(t, *srv.privacy.Title)
	assert.Nil(t, srv.privacy.AgencyRequestSummary)
}

func TestResponseHandlerDownloadTokenAllowsAnonymous(t *testing.T) {
	srv := &fakeResponseSrv{}
	h := NewResponseHandler(srv, nil, nil)

	c, rec := newTestContext(http.MethodPost, "/", nil, "")
	withParams(c, "id", "FOIL-2024-0002-00001", "responseId", "resp-1")
	h.DownloadToken(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, srv.lastActor)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"expires_at":"2024-06-03T14:10:00Z"`)
}

func TestResponseHandlerDownloadRedirects(t *testing.T) {
	signer := storage.NewDownloadSigner("secret", 10*time.Minute)
	token, _, err := signer.Sign(storage.DownloadClaims{ResponseID: "resp-1", ObjectKey: "requests/memo.pdf"})
	require.NoError(t, err)
	files := &presignStub{}
	h := NewResponseHandler(&fakeResponseSrv{}, signer, files)

	c, rec := newTestContext(http.MethodGet, "/", nil, "")
	withParams(c, "token", token)
	h.Download(c)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://files.example/foil/requests/memo.pdf?sig=1", rec.Header().Get("Location"))
	assert.Equal(t, "requests/memo.pdf", files.key)
	assert.Greater(t, files.expiry, 9*time.Minute)
}

func TestResponseHandlerDownloadRejectsBadTokens(t *testing.T) {
	issued := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	old := storage.NewDownloadSigner("secret", time.Minute).WithClock(func() time.Time { return issued })
	expired, _, err := old.Sign(storage.DownloadClaims{ResponseID: "resp-1", ObjectKey: "k"})
	require.NoError(t, err)

	h := NewResponseHandler(&fakeResponseSrv{}, storage.NewDownloadSigner("secret", time.Minute), &presignStub{})

	c, rec := newTestContext(http.MethodGet, "/", nil, "")
	withParams(c, "token", expired)
	h.Download(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "download token expired", decodeEnvelope(t, rec).Error.Message)

	c, rec = newTestContext(http.MethodGet, "/", nil, "")
	withParams(c, "token", "garbage")
	h.Download(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResponseHandlerDownloadDisabledOrFailing(t *testing.T) {
	h := NewResponseHandler(&fakeResponseSrv{}, nil, nil)
	c, rec := newTestContext(http.MethodGet, "/", nil, "")
	withParams(c, "token", "x")
	h.Download(c)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	signer := storage.NewDownloadSigner("secret", time.Minute)
	token, _, err := signer.Sign(storage.DownloadClaims{ResponseID: "r", ObjectKey: "k"})
	require.NoError(t, err)
	h = NewResponseHandler(&fakeResponseSrv{}, signer, &presignStub{err: errors.New("minio down")})
	c, rec = newTestContext(http.MethodGet, "/", nil, "")
	withParams(c, "token", token)
	h.Download(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
