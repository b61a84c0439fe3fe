package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/pagination"
	"github.com/inkwell-labs/quill/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*domain.Document, error)
	ListByUserWithCursor(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error
	UpdateStorageKey(ctx context.Context, id, storageKey string) error
	Delete(ctx context.Context, id string) error
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// IndexJobRepositoryInterface defines the repository interface for index job persistence
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
	GetByID(ctx context.Context, id string) (*domain.IndexJob, error)
	GetPendingForDocument(ctx context.Context, documentID string) (*domain.IndexJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error
}

// StorageClientInterface abstracts presigned access to the blob store
// holding original document files.
type StorageClientInterface interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
}

type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

var _ UUIDGenerator = (*DefaultUUIDGenerator)(nil)

// DocumentService handles business logic for documents and their index jobs
type DocumentService struct {
	docRepo       DocumentRepositoryInterface
	jobRepo       IndexJobRepositoryInterface
	storageClient StorageClientInterface
	txRunner      TxRunner
	uuidGen       UUIDGenerator
	maxPageSize   int
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(docRepo DocumentRepositoryInterface, jobRepo IndexJobRepositoryInterface, maxPageSize int) *DocumentService {
	if maxPageSize <= 0 {
		maxPageSize = 50
	}
	return &DocumentService{
		docRepo:     docRepo,
		jobRepo:     jobRepo,
		uuidGen:     &DefaultUUIDGenerator{},
		maxPageSize: maxPageSize,
	}
}

// NewDocumentServiceWithStorage creates a DocumentService that also manages
// the original file blob through a storage client.
func NewDocumentServiceWithStorage(
	docRepo DocumentRepositoryInterface,
	jobRepo IndexJobRepositoryInterface,
	storageClient StorageClientInterface,
	txRunner TxRunner,
	maxPageSize int,
) *DocumentService {
	s := NewDocumentService(docRepo, jobRepo, maxPageSize)
	s.storageClient = storageClient
	s.txRunner = txRunner
	return s
}

// NewDocumentServiceWithUUIDGen creates a DocumentService with a custom UUID
// generator (for testing).
func NewDocumentServiceWithUUIDGen(docRepo DocumentRepositoryInterface, jobRepo IndexJobRepositoryInterface, maxPageSize int, uuidGen UUIDGenerator) *DocumentService {
	s := NewDocumentService(docRepo, jobRepo, maxPageSize)
	s.uuidGen = uuidGen
	return s
}

// CreateDocumentInput represents the input for creating a document
type CreateDocumentInput struct {
	UserID     string
	Name       string
	Text       string
	StorageKey string
}

// Create stores a new document in pending status and queues an index job so
// the background worker picks it up.
func (s *DocumentService) Create(ctx context.Context, input CreateDocumentInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Create", telemetry.SpanAttributes{
		UserID: input.UserID,
	})
	defer span.End()

	doc := domain.NewDocument(s.uuidGen.NewString(), input.UserID, input.Name, input.Text, time.Now().UTC())
	doc.StorageKey = input.StorageKey

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	if err := s.createWithIndexJob(ctx, doc); err != nil {
		span.SetError(err)
		return nil, err
	}

	return doc, nil
}

// createWithIndexJob stores the document and its pending index job, in one
// transaction when a runner is configured.
func (s *DocumentService) createWithIndexJob(ctx context.Context, doc *domain.Document) error {
	job := &domain.IndexJob{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Status:     domain.IndexJobStatusPending,
		CreatedAt:  doc.CreatedAt,
	}

	if s.txRunner != nil {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Documents().Create(ctx, doc); err != nil {
				return fmt.Errorf("failed to create document: %w", err)
			}
			if err := repos.IndexJobs().Create(ctx, job); err != nil {
				return fmt.Errorf("failed to queue index job: %w", err)
			}
			return nil
		})
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to queue index job: %w", err)
	}

	return nil
}

// Get returns a document owned by the given user.
func (s *DocumentService) Get(ctx context.Context, documentID, userID string) (*domain.Document, error) {
	return s.docRepo.GetByIDForUser(ctx, documentID, userID)
}

// ListDocumentsInput represents the input for listing documents
type ListDocumentsInput struct {
	UserID string
	Cursor string
	Limit  int
}

// ListDocumentsOutput represents one page of a user's documents
type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// List returns a page of the user's documents, newest first.
func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	var cursor *pagination.Cursor
	if input.Cursor != "" {
		decoded, err := pagination.DecodeCursor(input.Cursor)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
		}
		cursor = decoded
	}

	page, err := s.docRepo.ListByUserWithCursor(ctx, input.UserID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// Delete removes a document, its segments and messages, and the original
// file blob when one was uploaded.
func (s *DocumentService) Delete(ctx context.Context, documentID, userID string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		UserID:     userID,
		DocumentID: documentID,
	})
	defer span.End()

	doc, err := s.docRepo.GetByIDForUser(ctx, documentID, userID)
	if err != nil {
		return err
	}

	if doc.StorageKey != "" && s.storageClient != nil {
		if err := s.storageClient.DeleteObject(ctx, doc.StorageKey); err != nil {
			span.SetError(err)
			return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to delete original file", err)
		}
	}

	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		span.SetError(err)
		return err
	}

	return nil
}

// TriggerIndex queues a re-index of the document. When a pending job already
// exists it is returned as-is, so repeated triggers do not pile up jobs.
func (s *DocumentService) TriggerIndex(ctx context.Context, documentID, userID string) (*domain.IndexJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.TriggerIndex", telemetry.SpanAttributes{
		UserID:     userID,
		DocumentID: documentID,
	})
	defer span.End()

	if _, err := s.docRepo.GetByIDForUser(ctx, documentID, userID); err != nil {
		return nil, err
	}

	existing, err := s.jobRepo.GetPendingForDocument(ctx, documentID)
	if err == nil {
		return existing, nil
	}
	if err != domain.ErrIndexJobNotFound {
		span.SetError(err)
		return nil, err
	}

	job := &domain.IndexJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Status:     domain.IndexJobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		span.SetError(err)
		return nil, err
	}

	return job, nil
}

// InitUploadInput represents the input for starting an original-file upload
type InitUploadInput struct {
	UserID      string
	Filename    string
	ContentType string
}

// InitUploadResult carries the presigned URL the client uploads the original
// file to, plus the storage key to echo back on completion.
type InitUploadResult struct {
	DocumentID string
	StorageKey string
	UploadURL  string
}

// InitUpload reserves a document ID and returns a presigned upload URL for
// the original file. Requires a configured storage client.
func (s *DocumentService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	if s.storageClient == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "file storage is not configured")
	}
	if input.Filename == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}

	documentID := s.uuidGen.NewString()
	storageKey := buildStorageKey(input.UserID, documentID, input.Filename)

	uploadURL, err := s.storageClient.GenerateUploadURL(ctx, storageKey, input.ContentType)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate upload URL", err)
	}

	return &InitUploadResult{
		DocumentID: documentID,
		StorageKey: storageKey,
		UploadURL:  uploadURL,
	}, nil
}

// CompleteUploadInput represents the input for finishing an original-file upload
type CompleteUploadInput struct {
	DocumentID string
	UserID     string
	Name       string
	Text       string
	StorageKey string
}

// CompleteUpload verifies the uploaded blob exists and creates the document
// record carrying its extracted text, queueing indexing as usual.
func (s *DocumentService) CompleteUpload(ctx context.Context, input CompleteUploadInput) (*domain.Document, error) {
	if s.storageClient == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "file storage is not configured")
	}

	if _, err := s.storageClient.HeadObject(ctx, input.StorageKey); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "uploaded file not found in storage", err)
	}

	doc := domain.NewDocument(input.DocumentID, input.UserID, input.Name, input.Text, time.Now().UTC())
	doc.StorageKey = input.StorageKey

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	if err := s.createWithIndexJob(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// GetDownloadURL returns a presigned link to the original uploaded file.
func (s *DocumentService) GetDownloadURL(ctx context.Context, documentID, userID string) (string, error) {
	if s.storageClient == nil {
		return "", domain.NewDomainError(domain.ErrCodeInvalidOperation, "file storage is not configured")
	}

	doc, err := s.docRepo.GetByIDForUser(ctx, documentID, userID)
	if err != nil {
		return "", err
	}
	if doc.StorageKey == "" {
		return "", domain.ErrUploadNotFound
	}

	url, err := s.storageClient.GenerateDownloadURL(ctx, doc.StorageKey)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate download URL", err)
	}

	return url, nil
}

func buildStorageKey(userID, documentID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", userID, documentID, filename)
}
