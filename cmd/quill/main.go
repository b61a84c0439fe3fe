package main

import (
	"fmt"
	"os"

	"github.com/inkwell-labs/quill/internal/cli"
	"github.com/inkwell-labs/quill/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill CLI - Ask questions about your documents",
		Long: `Quill CLI uploads documents and answers questions about them.

Environment variables:
  QUILL_API_KEY   API key for authentication (required)
  QUILL_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.IndexCmd())
	rootCmd.AddCommand(client.DownloadCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.ChatCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
