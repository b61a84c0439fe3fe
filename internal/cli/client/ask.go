package client

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <document-id> <question>",
		Short: "Ask a question about a document",
		Long:  "Streams the answer to stdout as it is generated.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], args[1])
		},
	}

	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")

	return cmd
}

func runAsk(cmd *cobra.Command, documentID, question string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	stream, err := api.Ask(cmd.Context(), documentID, question)
	if err != nil {
		return err
	}
	defer stream.Close()

	wrote := false
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if wrote {
				fmt.Fprintln(os.Stderr, "\nstream interrupted:", err)
			}
			return fmt.Errorf("failed to stream answer: %w", err)
		}
		fmt.Print(fragment)
		wrote = true
	}
	if wrote {
		fmt.Println()
	}
	return nil
}
