package client

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/inkwell-labs/quill/internal/chat"
	"github.com/spf13/cobra"
)

func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <document-id>",
		Short: "Interactive conversation with a document",
		Long: "Opens a prompt loop over a document. Each question is answered from the\n" +
			"document's indexed content and streamed as it is generated. Type /history\n" +
			"to show earlier turns, /more to load older ones, /quit to leave.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args[0])
		},
	}

	cmd.Flags().String("api-key", "", "API key (overrides config)")
	cmd.Flags().String("api-url", "", "API base URL (overrides config)")

	return cmd
}

func runChat(cmd *cobra.Command, documentID string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cache := chat.NewConversationCache()
	session := chat.NewChatSession(api, documentID, cache)
	session.SetFragmentHandler(func(fragment string) {
		fmt.Print(fragment)
	})

	if err := session.Refresh(ctx); err != nil {
		return err
	}

	pages := cache.Pages()
	if len(pages) > 0 && len(pages[0].Messages) > 0 {
		fmt.Printf("Resuming conversation (%d recent messages, /history to show)\n", len(pages[0].Messages))
	}
	fmt.Println("Ask a question, or /quit to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/history":
			printHistory(cache)
			continue
		case line == "/more":
			more, err := session.LoadMore(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if !more {
				fmt.Println("No older messages.")
				continue
			}
			printHistory(cache)
			continue
		}

		session.SetInput(line)
		if err := session.Submit(ctx); err != nil {
			// the session restored the input and the cache already;
			// the notice is the user-facing summary
			fmt.Fprintln(os.Stderr, session.Notice())
			continue
		}
		fmt.Println()
	}
}

// printHistory renders the cached pages oldest-first so the terminal reads
// top to bottom.
func printHistory(cache *chat.ConversationCache) {
	pages := cache.Pages()
	var all []chat.Message
	for i := len(pages) - 1; i >= 0; i-- {
		for j := len(pages[i].Messages) - 1; j >= 0; j-- {
			all = append(all, pages[i].Messages[j])
		}
	}
	if len(all) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, m := range all {
		prefix := "you"
		if m.Role == chat.RoleAssistant {
			prefix = "quill"
		}
		fmt.Printf("[%s] %s\n", prefix, m.Text)
	}
}
