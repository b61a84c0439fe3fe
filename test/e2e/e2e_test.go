//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubAnswer = "The document says what it says."

type documentJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	HasFile   bool   `json:"has_file"`
	CreatedAt string `json:"created_at"`
}

type documentListJSON struct {
	Items   []documentJSON `json:"items"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

type messageJSON struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type messageListJSON struct {
	Items   []messageJSON `json:"items"`
	Cursor  string        `json:"cursor"`
	HasMore bool          `json:"has_more"`
}

func createDocument(t *testing.T, env *E2ETestEnv, name, text string) documentJSON {
	t.Helper()
	resp, err := env.Post("/documents", map[string]string{"name": name, "text": text}, env.APIKeyToken)
	require.NoError(t, err)

	var doc documentJSON
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	require.NotEmpty(t, doc.ID)
	return doc
}

// TestE2E_Auth tests API key authentication
func TestE2E_Auth(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("valid API key authenticates", func(t *testing.T) {
		resp, err := env.Get("/documents", env.APIKeyToken)
		require.NoError(t, err)

		var list documentListJSON
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.NotNil(t, list.Items) // Should be empty array, not error
	})

	t.Run("invalid API key returns 401", func(t *testing.T) {
		_, err := env.Get("/documents", "qll_"+strings.Repeat("0", 64))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("missing API key returns 401", func(t *testing.T) {
		_, err := env.Get("/documents", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

// TestE2E_DocumentLifecycle tests document CRUD operations
func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	var documentID string

	t.Run("create document", func(t *testing.T) {
		doc := createDocument(t, env, "E2E Test Document", "Ferric oxide is commonly known as rust. It forms when iron reacts with oxygen and water.")
		assert.Equal(t, "E2E Test Document", doc.Name)
		assert.Equal(t, "pending", doc.Status)
		assert.False(t, doc.HasFile)
		assert.NotEmpty(t, doc.CreatedAt)

		documentID = doc.ID
	})

	t.Run("create enqueues an index job", func(t *testing.T) {
		var status string
		err := env.Pool.QueryRow(env.Ctx,
			"SELECT status FROM index_jobs WHERE document_id = $1", documentID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, "pending", status)
	})

	t.Run("get document by ID", func(t *testing.T) {
		resp, err := env.Get("/documents/"+documentID, env.APIKeyToken)
		require.NoError(t, err)

		var doc documentJSON
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, documentID, doc.ID)
		assert.Equal(t, "E2E Test Document", doc.Name)
	})

	t.Run("list documents returns created items", func(t *testing.T) {
		resp, err := env.Get("/documents", env.APIKeyToken)
		require.NoError(t, err)

		var list documentListJSON
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		require.GreaterOrEqual(t, len(list.Items), 1)

		found := false
		for _, d := range list.Items {
			if d.ID == documentID {
				found = true
				break
			}
		}
		assert.True(t, found, "created document should be in list")
	})

	t.Run("trigger index returns a job", func(t *testing.T) {
		resp, err := env.Post("/documents/"+documentID+"/index", nil, env.APIKeyToken)
		require.NoError(t, err)

		var job struct {
			ID         string `json:"id"`
			DocumentID string `json:"document_id"`
			Status     string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &job))
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, documentID, job.DocumentID)
		assert.Equal(t, "pending", job.Status)
	})

	t.Run("delete document", func(t *testing.T) {
		_, err := env.Delete("/documents/"+documentID, env.APIKeyToken)
		require.NoError(t, err)

		_, err = env.Get("/documents/"+documentID, env.APIKeyToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("delete cascades to index jobs", func(t *testing.T) {
		var count int
		err := env.Pool.QueryRow(env.Ctx,
			"SELECT COUNT(*) FROM index_jobs WHERE document_id = $1", documentID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

// TestE2E_IndexingAndAsk tests the indexing pipeline and streaming Q&A
func TestE2E_IndexingAndAsk(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	doc := createDocument(t, env, "Chemistry Notes",
		"Ferric oxide is commonly known as rust. Rust forms when iron reacts with oxygen in the presence of water. "+
			"The reaction is an example of oxidation. Painting or galvanizing iron prevents rust from forming.")

	t.Run("index job produces segments", func(t *testing.T) {
		env.ProcessIndexJobs()

		var status string
		err := env.Pool.QueryRow(env.Ctx,
			"SELECT status FROM documents WHERE id = $1", doc.ID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, "processed", status)

		var segments int
		err = env.Pool.QueryRow(env.Ctx,
			"SELECT COUNT(*) FROM segments WHERE document_id = $1", doc.ID).Scan(&segments)
		require.NoError(t, err)
		assert.Greater(t, segments, 0)
	})

	t.Run("empty document fails indexing without retries", func(t *testing.T) {
		empty := createDocument(t, env, "Empty Document", "")
		env.ProcessIndexJobs()

		var docStatus, jobStatus string
		var retries int
		require.NoError(t, env.Pool.QueryRow(env.Ctx,
			"SELECT status FROM documents WHERE id = $1", empty.ID).Scan(&docStatus))
		require.NoError(t, env.Pool.QueryRow(env.Ctx,
			"SELECT status, retries FROM index_jobs WHERE document_id = $1", empty.ID).Scan(&jobStatus, &retries))
		assert.Equal(t, "failed", docStatus)
		assert.Equal(t, "failed", jobStatus)
		assert.Equal(t, 0, retries)
	})

	t.Run("ask streams the answer", func(t *testing.T) {
		body, status, err := env.Ask(doc.ID, "How does rust form?", env.APIKeyToken)
		require.NoError(t, err)
		assert.Equal(t, 200, status)
		assert.Equal(t, stubAnswer, body)
	})

	t.Run("ask persists both conversation turns", func(t *testing.T) {
		resp, err := env.Get("/documents/"+doc.ID+"/messages", env.APIKeyToken)
		require.NoError(t, err)

		var list messageListJSON
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		require.Len(t, list.Items, 2)

		// Newest first: the assistant answer, then the question.
		assert.Equal(t, "assistant", list.Items[0].Role)
		assert.Equal(t, stubAnswer, list.Items[0].Text)
		assert.Equal(t, "user", list.Items[1].Role)
		assert.Equal(t, "How does rust form?", list.Items[1].Text)
	})

	t.Run("ask with empty question returns 400", func(t *testing.T) {
		_, status, err := env.Ask(doc.ID, "", env.APIKeyToken)
		require.NoError(t, err)
		assert.Equal(t, 400, status)
	})

	t.Run("ask against missing document returns 404", func(t *testing.T) {
		_, status, err := env.Ask("00000000-0000-0000-0000-000000000000", "Anything?", env.APIKeyToken)
		require.NoError(t, err)
		assert.Equal(t, 404, status)
	})
}

// TestE2E_MessagePagination tests cursor-based message history paging
func TestE2E_MessagePagination(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	doc := createDocument(t, env, "Paging Document", "A short document used to exercise message history paging.")
	env.ProcessIndexJobs()

	// Three asks leave six messages in the conversation.
	for i := 0; i < 3; i++ {
		_, status, err := env.Ask(doc.ID, fmt.Sprintf("Question number %d?", i+1), env.APIKeyToken)
		require.NoError(t, err)
		require.Equal(t, 200, status)
	}

	t.Run("pages walk the full history without overlap", func(t *testing.T) {
		seen := map[string]bool{}
		cursor := ""
		pages := 0

		for {
			path := "/documents/" + doc.ID + "/messages?limit=2"
			if cursor != "" {
				path += "&cursor=" + cursor
			}
			resp, err := env.Get(path, env.APIKeyToken)
			require.NoError(t, err)

			var list messageListJSON
			require.NoError(t, json.Unmarshal(resp.Data, &list))
			require.LessOrEqual(t, len(list.Items), 2)

			for _, m := range list.Items {
				require.False(t, seen[m.ID], "message %s returned twice", m.ID)
				seen[m.ID] = true
			}

			pages++
			if !list.HasMore {
				break
			}
			require.NotEmpty(t, list.Cursor)
			cursor = list.Cursor
		}

		assert.Equal(t, 3, pages)
		assert.Len(t, seen, 6)
	})

	t.Run("invalid limit returns 400", func(t *testing.T) {
		_, err := env.Get("/documents/"+doc.ID+"/messages?limit=abc", env.APIKeyToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})
}

// TestE2E_FileUploadDownload tests the presigned file upload and download flow
func TestE2E_FileUploadDownload(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	fileContent := []byte("%PDF-1.4 fake report content for upload testing")
	var documentID, storageKey string

	t.Run("init upload returns presigned URL", func(t *testing.T) {
		resp, err := env.Post("/documents/init", map[string]string{
			"filename":     "report.pdf",
			"content_type": "application/pdf",
		}, env.APIKeyToken)
		require.NoError(t, err)

		var init struct {
			DocumentID string `json:"document_id"`
			StorageKey string `json:"storage_key"`
			UploadURL  string `json:"upload_url"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &init))
		require.NotEmpty(t, init.UploadURL)
		require.NotEmpty(t, init.StorageKey)

		require.NoError(t, env.UploadFile(init.UploadURL, fileContent, "application/pdf"))

		documentID = init.DocumentID
		storageKey = init.StorageKey
	})

	t.Run("complete upload creates the document", func(t *testing.T) {
		resp, err := env.Post("/documents/complete", map[string]string{
			"document_id": documentID,
			"name":        "Quarterly Report",
			"text":        "Revenue grew in the third quarter.",
			"storage_key": storageKey,
		}, env.APIKeyToken)
		require.NoError(t, err)

		var doc documentJSON
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, documentID, doc.ID)
		assert.Equal(t, "Quarterly Report", doc.Name)
		assert.True(t, doc.HasFile)
	})

	t.Run("download URL serves the original bytes", func(t *testing.T) {
		resp, err := env.Get("/documents/"+documentID+"/download", env.APIKeyToken)
		require.NoError(t, err)

		var dl struct {
			DownloadURL string `json:"download_url"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &dl))
		require.NotEmpty(t, dl.DownloadURL)

		downloaded, err := env.DownloadFile(dl.DownloadURL)
		require.NoError(t, err)
		assert.Equal(t, SHA256Sum(fileContent), SHA256Sum(downloaded))
	})

	t.Run("delete removes the stored object", func(t *testing.T) {
		_, err := env.Delete("/documents/"+documentID, env.APIKeyToken)
		require.NoError(t, err)

		_, err = env.S3Client.HeadObject(env.Ctx, storageKey)
		require.Error(t, err)
	})
}

// TestE2E_OwnershipIsolation tests that documents are scoped to their owner
func TestE2E_OwnershipIsolation(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	doc := createDocument(t, env, "Private Document", "Contents only the owner should reach.")

	// Second user with their own key.
	otherEnv := &E2ETestEnv{T: t, Ctx: env.Ctx, Pool: env.Pool, ServerURL: env.ServerURL, HTTPClient: env.HTTPClient}
	otherEnv.bootstrapNamed("e2e-other-user")

	t.Run("other user cannot read the document", func(t *testing.T) {
		_, err := env.Get("/documents/"+doc.ID, otherEnv.APIKeyToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("other user cannot delete the document", func(t *testing.T) {
		_, err := env.Delete("/documents/"+doc.ID, otherEnv.APIKeyToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("other user cannot ask about the document", func(t *testing.T) {
		_, status, err := env.Ask(doc.ID, "What does it say?", otherEnv.APIKeyToken)
		require.NoError(t, err)
		assert.Equal(t, 404, status)
	})

	t.Run("other user's document list stays empty", func(t *testing.T) {
		resp, err := env.Get("/documents", otherEnv.APIKeyToken)
		require.NoError(t, err)

		var list documentListJSON
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.Empty(t, list.Items)
	})
}

// TestE2E_CLIWorkflow tests the quill CLI against a running server
func TestE2E_CLIWorkflow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()
	env.BuildBinaries()

	workDir := t.TempDir()
	var documentID string

	t.Run("quill upload creates a document", func(t *testing.T) {
		out, err := env.RunQuill(workDir, "upload",
			"--name", "CLI Document",
			"--text", "Uploaded through the command line interface.")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "Document uploaded: CLI Document")

		// "Document uploaded: <name> (<id>)"
		var uploadedLine string
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(line, "Document uploaded:") {
				uploadedLine = line
				break
			}
		}
		start := strings.LastIndex(uploadedLine, "(")
		end := strings.LastIndex(uploadedLine, ")")
		require.True(t, start >= 0 && end > start, "output: %s", out)
		documentID = uploadedLine[start+1 : end]
	})

	t.Run("quill list shows the document", func(t *testing.T) {
		out, err := env.RunQuill(workDir, "list")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "CLI Document")
		assert.Contains(t, out, documentID)
	})

	t.Run("quill ask streams the answer", func(t *testing.T) {
		env.ProcessIndexJobs()

		out, err := env.RunQuill(workDir, "ask", documentID, "What was uploaded?")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, stubAnswer)
	})

	t.Run("quill delete removes the document", func(t *testing.T) {
		out, err := env.RunQuill(workDir, "delete", documentID)
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "deleted")

		out, err = env.RunQuill(workDir, "list")
		require.NoError(t, err, "output: %s", out)
		assert.NotContains(t, out, documentID)
	})
}

// TestE2E_FullWorkflow runs the whole pipeline end to end
func TestE2E_FullWorkflow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("upload, index, converse, delete", func(t *testing.T) {
		doc := createDocument(t, env, "Workflow Document",
			"The capital of France is Paris. Paris sits on the Seine and is known for the Eiffel Tower.")

		env.ProcessIndexJobs()

		var status string
		require.NoError(t, env.Pool.QueryRow(env.Ctx,
			"SELECT status FROM documents WHERE id = $1", doc.ID).Scan(&status))
		require.Equal(t, "processed", status)

		body, code, err := env.Ask(doc.ID, "What is the capital of France?", env.APIKeyToken)
		require.NoError(t, err)
		require.Equal(t, 200, code)
		require.Equal(t, stubAnswer, body)

		body, code, err = env.Ask(doc.ID, "And what river runs through it?", env.APIKeyToken)
		require.NoError(t, err)
		require.Equal(t, 200, code)
		require.Equal(t, stubAnswer, body)

		resp, err := env.Get("/documents/"+doc.ID+"/messages", env.APIKeyToken)
		require.NoError(t, err)
		var list messageListJSON
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.Len(t, list.Items, 4)

		_, err = env.Delete("/documents/"+doc.ID, env.APIKeyToken)
		require.NoError(t, err)

		var messages int
		require.NoError(t, env.Pool.QueryRow(env.Ctx,
			"SELECT COUNT(*) FROM messages WHERE document_id = $1", doc.ID).Scan(&messages))
		assert.Equal(t, 0, messages)
	})
}
