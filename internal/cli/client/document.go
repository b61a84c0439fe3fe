package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type documentItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	HasFile   bool   `json:"has_file"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type listDocumentsPayload struct {
	Items   []documentItem `json:"items"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

func UploadCmd() *cobra.Command {
	var name string
	var textPath string
	var filePath string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a document",
		Long: "Creates a document from extracted text and queues it for indexing.\n" +
			"With --file, the original file is also uploaded to blob storage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("json")
			return runUpload(cmd, name, textPath, filePath, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Document name (defaults to the text file name)")
	cmd.Flags().StringVarP(&textPath, "text", "t", "", "Path to the extracted text file (required)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the original file to store alongside the text")
	cmd.Flags().Bool("json", false, "Output result as JSON")
	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")
	cmd.MarkFlagRequired("text")

	return cmd
}

func runUpload(cmd *cobra.Command, name, textPath, filePath string, outputJSON bool) error {
	text, err := os.ReadFile(textPath)
	if err != nil {
		return fmt.Errorf("failed to read text file: %w", err)
	}

	if name == "" {
		name = filepath.Base(textPath)
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	if filePath == "" {
		resp, err := api.Post("/documents", map[string]string{
			"name": name,
			"text": string(text),
		})
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return printDocumentResult(resp.Data, outputJSON)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	initResp, err := api.Post("/documents/init", map[string]string{
		"filename":     filepath.Base(filePath),
		"content_type": contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to init upload: %w", err)
	}

	var init struct {
		DocumentID string `json:"document_id"`
		StorageKey string `json:"storage_key"`
		UploadURL  string `json:"upload_url"`
	}
	if err := json.Unmarshal(initResp.Data, &init); err != nil {
		return fmt.Errorf("failed to parse init response: %w", err)
	}

	if err := api.UploadFile(init.UploadURL, filePath, contentType); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	completeResp, err := api.Post("/documents/complete", map[string]string{
		"document_id": init.DocumentID,
		"name":        name,
		"text":        string(text),
		"storage_key": init.StorageKey,
	})
	if err != nil {
		return fmt.Errorf("failed to complete upload: %w", err)
	}
	return printDocumentResult(completeResp.Data, outputJSON)
}

func printDocumentResult(data json.RawMessage, outputJSON bool) error {
	if outputJSON {
		fmt.Println(string(data))
		return nil
	}

	var doc documentItem
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse document response: %w", err)
	}
	fmt.Printf("Document uploaded: %s (%s)\n", doc.Name, doc.ID)
	fmt.Printf("Status: %s (indexing runs in the background)\n", doc.Status)
	return nil
}

func ListCmd() *cobra.Command {
	var limit int
	var cursor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("json")
			return runList(cmd, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().Bool("json", false, "Output result as JSON")
	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")

	return cmd
}

func runList(cmd *cobra.Command, limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/documents?limit=%d", limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if outputJSON {
		fmt.Println(string(resp.Data))
		return nil
	}

	var payload listDocumentsPayload
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return fmt.Errorf("failed to parse documents: %w", err)
	}

	if len(payload.Items) == 0 {
		fmt.Println("No documents found")
		return nil
	}

	fmt.Println("Documents:")
	for _, doc := range payload.Items {
		marker := ""
		if doc.HasFile {
			marker = " [file]"
		}
		fmt.Printf("  %s: %s (%s)%s\n", doc.ID, doc.Name, doc.Status, marker)
	}
	if payload.HasMore && payload.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", payload.Cursor)
	}

	return nil
}

func DeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document",
		Long:  "Deletes a document along with its segments, messages, and stored file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/documents/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
			fmt.Printf("Document %s deleted\n", args[0])
			return nil
		},
	}

	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")

	return cmd
}

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <document-id>",
		Short: "Re-trigger indexing for a document",
		Long:  "Queues an index job for the document. A no-op if one is already pending.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Post("/documents/"+url.PathEscape(args[0])+"/index", nil)
			if err != nil {
				return fmt.Errorf("failed to trigger indexing: %w", err)
			}

			var job struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			}
			if err := json.Unmarshal(resp.Data, &job); err != nil {
				return fmt.Errorf("failed to parse job response: %w", err)
			}
			fmt.Printf("Index job %s queued (%s)\n", job.ID, job.Status)
			return nil
		},
	}

	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")

	return cmd
}

func DownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <document-id>",
		Short: "Download a document's original file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Get("/documents/" + url.PathEscape(args[0]) + "/download")
			if err != nil {
				return fmt.Errorf("failed to get download URL: %w", err)
			}

			var payload struct {
				DownloadURL string `json:"download_url"`
			}
			if err := json.Unmarshal(resp.Data, &payload); err != nil {
				return fmt.Errorf("failed to parse download response: %w", err)
			}

			if output == "" {
				output = args[0]
			}
			if err := api.DownloadFile(payload.DownloadURL, output); err != nil {
				return err
			}
			fmt.Printf("Downloaded to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (defaults to the document id)")
	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")

	return cmd
}
