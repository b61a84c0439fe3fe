//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkwell-labs/quill/internal/api/handlers"
	"github.com/inkwell-labs/quill/internal/jobs"
	"github.com/inkwell-labs/quill/internal/openai"
	"github.com/inkwell-labs/quill/internal/repository"
	"github.com/inkwell-labs/quill/internal/server"
	"github.com/inkwell-labs/quill/internal/service"
	"github.com/inkwell-labs/quill/internal/storage"
	"github.com/inkwell-labs/quill/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	UserID       string
	APIKeyToken  string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	// Start PostgreSQL container
	pgC := testutil.NewPostgresContainer(ctx, t)

	// Start RustFS container
	s3C := testutil.NewRustFSContainer(ctx, t)

	// Create connection pool and run migrations
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	// Create S3 client
	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	// Find free port for server
	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	// Start HTTP server
	serverURL, serverCloser := startServer(t, pool, s3Client, port)

	env := &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	// Clean up binaries
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Bootstrap creates a user and API key for testing. There is no public
// endpoint for either, so it goes through the service layer the way the
// admin CLI does.
func (e *E2ETestEnv) Bootstrap() {
	e.bootstrapNamed("e2e-user")
}

func (e *E2ETestEnv) bootstrapNamed(name string) {
	userRepo := repository.NewUserRepository(e.Pool)
	apiKeyRepo := repository.NewAPIKeyRepository(e.Pool)
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})

	user, err := authSvc.CreateUser(e.Ctx, name, name+"@example.com")
	if err != nil {
		e.T.Fatalf("failed to create user: %v", err)
	}
	e.UserID = user.ID

	token, err := authSvc.CreateAPIKey(e.Ctx, user.ID, "e2e-test-key")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.APIKeyToken = token
}

// ProcessIndexJobs drains pending index jobs synchronously, the same way the
// background worker does, so tests don't have to poll.
func (e *E2ETestEnv) ProcessIndexJobs() {
	docRepo := repository.NewDocumentRepository(e.Pool)
	segmentRepo := repository.NewSegmentRepository(e.Pool)
	indexJobRepo := repository.NewIndexJobRepository(e.Pool)
	txRunner := repository.NewTxRunner(e.Pool)

	indexerSvc := service.NewIndexerServiceWithTx(&stubEmbeddingClient{}, docRepo, segmentRepo, txRunner)
	worker := jobs.NewIndexWorker(indexJobRepo, indexerSvc)
	if err := worker.ProcessJobs(e.Ctx); err != nil {
		e.T.Fatalf("failed to process index jobs: %v", err)
	}
}

// BuildBinaries builds the quill and quilld binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "quill-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	// Build quilld
	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "quilld"), "./cmd/quilld")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build quilld: %v\n%s", err, out)
	}

	// Build quill
	cmd = exec.Command("go", "build", "-o", filepath.Join(tmpDir, "quill"), "./cmd/quill")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build quill: %v\n%s", err, out)
	}
}

// RunQuill runs the quill CLI command
func (e *E2ETestEnv) RunQuill(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "quill"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("QUILL_API_KEY=%s", e.APIKeyToken),
		fmt.Sprintf("QUILL_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunQuillWithInput runs the quill CLI command with stdin input
func (e *E2ETestEnv) RunQuillWithInput(workDir string, input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "quill"), args...)
	cmd.Dir = workDir
	cmd.Stdin = bytes.NewReader([]byte(input))
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("QUILL_API_KEY=%s", e.APIKeyToken),
		fmt.Sprintf("QUILL_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// Ask posts a question to a document and returns the streamed answer body.
func (e *E2ETestEnv) Ask(documentID, question, authToken string) (string, int, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequest("POST", e.ServerURL+"/documents/"+documentID+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

// UploadFile uploads a file to the presigned URL
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest("PUT", uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// DownloadFile downloads a file from the presigned URL
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// SHA256Sum calculates SHA256 hash of data
func SHA256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// startServer starts the HTTP server with all handlers. Embedding and chat
// completion run against local stubs so tests don't need an OpenAI key.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	// Initialize repositories
	docRepo := repository.NewDocumentRepository(pool)
	segmentRepo := repository.NewSegmentRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// Initialize services
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)
	docSvc := service.NewDocumentServiceWithStorage(docRepo, indexJobRepo, &s3StorageAdapter{client: s3Client}, txRunner, 50)
	messageSvc := service.NewMessageService(messageRepo, docRepo, 50)

	retrieverSvc := service.NewRetrieverService(segmentRepo)
	generatorSvc := service.NewGeneratorService(
		&stubEmbeddingClient{},
		&stubChatClient{},
		retrieverSvc,
		messageRepo,
		4,
		6,
	)

	// Initialize handlers
	documentHandler := handlers.NewDocumentHandler(docSvc)
	messageHandler := handlers.NewMessageHandler(messageSvc, generatorSvc)

	cfg := server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: documentHandler,
		MessageHandler:  messageHandler,
	}

	router := server.NewRouter(cfg)
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	// Wait for server to start
	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// s3StorageAdapter adapts S3Client to StorageClientInterface
type s3StorageAdapter struct {
	client *storage.S3Client
}

func (a *s3StorageAdapter) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *s3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *s3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
}

func (a *s3StorageAdapter) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := a.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}

// stubEmbeddingClient derives a deterministic 1536-dim vector from the text
// hash, so identical text always lands on identical embeddings.
type stubEmbeddingClient struct{}

func (c *stubEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 1536)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vec, nil
}

// stubChatClient streams a fixed answer fragment by fragment.
type stubChatClient struct{}

var stubAnswerFragments = []string{"The document ", "says what ", "it says."}

func (c *stubChatClient) StreamCompletion(ctx context.Context, messages []openai.ChatMessage) (openai.ChatStream, error) {
	return &stubChatStream{fragments: stubAnswerFragments}, nil
}

type stubChatStream struct {
	fragments []string
	i         int
}

func (s *stubChatStream) Recv() (string, error) {
	if s.i >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.i]
	s.i++
	return f, nil
}

func (s *stubChatStream) Close() error {
	return nil
}
