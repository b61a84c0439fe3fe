//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDocumentForJobs(ctx context.Context, t *testing.T, userRepo *UserRepository, docRepo *DocumentRepository) *domain.Document {
	t.Helper()
	user := &domain.User{
		ID:        uuid.NewString(),
		Name:      "job-owner-" + uuid.NewString()[:8],
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, userRepo.Create(ctx, user))

	doc := domain.NewDocument(uuid.NewString(), user.ID, "Job Doc", "text", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, docRepo.Create(ctx, doc))
	return doc
}

func TestIndexJobRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	docRepo := NewDocumentRepository(pool)
	jobRepo := NewIndexJobRepository(pool)

	doc := setupDocumentForJobs(ctx, t, userRepo, docRepo)

	job := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", time.Now().UTC().Truncate(time.Microsecond), nil)
	require.NoError(t, jobRepo.Create(ctx, job))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, doc.ID, retrieved.DocumentID)
	assert.Equal(t, domain.IndexJobStatusPending, retrieved.Status)
	assert.Equal(t, int32(0), retrieved.Retries)
	assert.Empty(t, retrieved.Error)
	assert.Nil(t, retrieved.ProcessedAt)
}

func TestIndexJobRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewIndexJobRepository(pool)

	_, err := jobRepo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_GetPendingForDocument(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	docRepo := NewDocumentRepository(pool)
	jobRepo := NewIndexJobRepository(pool)

	doc := setupDocumentForJobs(ctx, t, userRepo, docRepo)

	job := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", time.Now().UTC().Truncate(time.Microsecond), nil)
	require.NoError(t, jobRepo.Create(ctx, job))

	pending, err := jobRepo.GetPendingForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, pending.ID)

	require.NoError(t, jobRepo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusCompleted, ""))

	_, err = jobRepo.GetPendingForDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	docRepo := NewDocumentRepository(pool)
	jobRepo := NewIndexJobRepository(pool)

	doc := setupDocumentForJobs(ctx, t, userRepo, docRepo)

	base := time.Now().UTC().Truncate(time.Microsecond)
	first := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", base, nil)
	second := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", base.Add(time.Second), nil)
	require.NoError(t, jobRepo.Create(ctx, first))
	require.NoError(t, jobRepo.Create(ctx, second))

	claimed, err := jobRepo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)
	for _, job := range claimed {
		assert.Equal(t, domain.IndexJobStatusProcessing, job.Status)
	}

	// A second claim finds nothing: the jobs are already processing.
	claimed, err = jobRepo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestIndexJobRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	docRepo := NewDocumentRepository(pool)
	jobRepo := NewIndexJobRepository(pool)

	doc := setupDocumentForJobs(ctx, t, userRepo, docRepo)
	job := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", time.Now().UTC().Truncate(time.Microsecond), nil)
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, jobRepo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, "embedding provider unavailable"))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusFailed, retrieved.Status)
	assert.Equal(t, "embedding provider unavailable", retrieved.Error)
	assert.NotNil(t, retrieved.ProcessedAt)
}

func TestIndexJobRepository_UpdateStatus_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewIndexJobRepository(pool)

	err := jobRepo.UpdateStatus(ctx, uuid.NewString(), domain.IndexJobStatusCompleted, "")
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_IncrementRetries(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	docRepo := NewDocumentRepository(pool)
	jobRepo := NewIndexJobRepository(pool)

	doc := setupDocumentForJobs(ctx, t, userRepo, docRepo)
	job := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", time.Now().UTC().Truncate(time.Microsecond), nil)
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, jobRepo.IncrementRetries(ctx, job.ID))
	require.NoError(t, jobRepo.IncrementRetries(ctx, job.ID))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), retrieved.Retries)
}

func TestIndexJobRepository_CascadeOnDocumentDelete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	docRepo := NewDocumentRepository(pool)
	jobRepo := NewIndexJobRepository(pool)

	doc := setupDocumentForJobs(ctx, t, userRepo, docRepo)
	job := domain.NewIndexJob(uuid.NewString(), doc.ID, domain.IndexJobStatusPending, 0, "", time.Now().UTC().Truncate(time.Microsecond), nil)
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, docRepo.Delete(ctx, doc.ID))

	_, err := jobRepo.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}
