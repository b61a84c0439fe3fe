package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Create(ctx context.Context, input service.CreateDocumentInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, documentID, userID string) (*domain.Document, error) {
	args := m.Called(ctx, documentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListDocumentsOutput), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, documentID, userID string) error {
	args := m.Called(ctx, documentID, userID)
	return args.Error(0)
}

func (m *MockDocumentService) TriggerIndex(ctx context.Context, documentID, userID string) (*domain.IndexJob, error) {
	args := m.Called(ctx, documentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockDocumentService) InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitUploadResult), args.Error(1)
}

func (m *MockDocumentService) CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) GetDownloadURL(ctx context.Context, documentID, userID string) (string, error) {
	args := m.Called(ctx, documentID, userID)
	return args.String(0), args.Error(1)
}

func newTestDocument() *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:        "doc-123",
		UserID:    "user-456",
		Name:      "report.pdf",
		Text:      "extracted text",
		Status:    domain.DocumentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDocumentHandler_Create_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(input service.CreateDocumentInput) bool {
		return input.UserID == "user-456" && input.Name == "report.pdf"
	})).Return(newTestDocument(), nil)

	req := requestWithUser(http.MethodPost, "/documents", []byte(`{"name":"report.pdf","text":"extracted text"}`), nil)
	w := httptest.NewRecorder()

	handler.Create(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "doc-123", data["id"])
	assert.Equal(t, "pending", data["status"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Create_MissingName(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService))

	req := requestWithUser(http.MethodPost, "/documents", []byte(`{"text":"body"}`), nil)
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Create_Unauthorized(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService))

	req := httptest.NewRequest(http.MethodPost, "/documents", nil)
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Get", mock.Anything, "ghost", "user-456").Return(nil, domain.ErrDocumentNotFound)

	req := requestWithUser(http.MethodGet, "/documents/ghost", nil, map[string]string{"id": "ghost"})
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_List_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	out := &service.ListDocumentsOutput{
		Items:   []*domain.Document{newTestDocument()},
		HasMore: false,
	}
	mockSvc.On("List", mock.Anything, mock.MatchedBy(func(input service.ListDocumentsInput) bool {
		return input.UserID == "user-456" && input.Cursor == "abc"
	})).Return(out, nil)

	req := requestWithUser(http.MethodGet, "/documents?cursor=abc", nil, nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Len(t, data["items"], 1)
	assert.Equal(t, false, data["has_more"])
}

func TestDocumentHandler_Delete_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Delete", mock.Anything, "doc-123", "user-456").Return(nil)

	req := requestWithUser(http.MethodDelete, "/documents/doc-123", nil, map[string]string{"id": "doc-123"})
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_TriggerIndex_Accepted(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	job := &domain.IndexJob{ID: "job-1", DocumentID: "doc-123", Status: domain.IndexJobStatusPending}
	mockSvc.On("TriggerIndex", mock.Anything, "doc-123", "user-456").Return(job, nil)

	req := requestWithUser(http.MethodPost, "/documents/doc-123/index", nil, map[string]string{"id": "doc-123"})
	w := httptest.NewRecorder()

	handler.TriggerIndex(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["id"])
	assert.Equal(t, "pending", data["status"])
}

func TestDocumentHandler_InitUpload_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	result := &service.InitUploadResult{
		DocumentID: "doc-9",
		StorageKey: "user-456/doc-9/report.pdf",
		UploadURL:  "https://bucket.example/presigned",
	}
	mockSvc.On("InitUpload", mock.Anything, mock.MatchedBy(func(input service.InitUploadInput) bool {
		return input.UserID == "user-456" && input.Filename == "report.pdf"
	})).Return(result, nil)

	req := requestWithUser(http.MethodPost, "/documents/init", []byte(`{"filename":"report.pdf","content_type":"application/pdf"}`), nil)
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "https://bucket.example/presigned", data["upload_url"])
}

func TestDocumentHandler_CompleteUpload_MissingFields(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService))

	req := requestWithUser(http.MethodPost, "/documents/complete", []byte(`{"name":"a.pdf"}`), nil)
	w := httptest.NewRecorder()

	handler.CompleteUpload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
