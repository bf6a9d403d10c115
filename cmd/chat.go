package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sgtlim/aether/internal/client"
)

var (
	chatServerURL string
	chatModel     string
	chatNoTools   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running aether server from the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServerURL, "server", "http://localhost:8080", "aether server base URL")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model override (server default when empty)")
	chatCmd.Flags().BoolVar(&chatNoTools, "no-tools", false, "disable tool calling for this conversation")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess := client.NewSession(client.New(chatServerURL, nil))
	sess.Model = chatModel
	sess.BrowserID = uuid.NewString()
	sess.OnToken = func(text string) {
		fmt.Print(text)
	}

	toolsEnabled := !chatNoTools
	sess.Tools = &toolsEnabled

	fmt.Printf("Aether %s - chatting with %s\n", AppVersion, chatServerURL)
	fmt.Println("Type /help for commands, Ctrl+D to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			// EOF (Ctrl+D)
			fmt.Println("\nGoodbye!")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleChatCommand(input, sess, &toolsEnabled) {
				break
			}
			continue
		}

		fmt.Print("Assistant: ")
		err := sess.Send(ctx, input)
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Streaming error: %v\n", err)
			continue
		}
		if msg := sess.LastError(); msg != "" {
			fmt.Fprintf(os.Stderr, "Server error: %s\n", msg)
		}
		if sources := sess.Sources(); len(sources) > 0 {
			fmt.Println("Sources:")
			for i, src := range sources {
				fmt.Printf("  %d. %s (%s)\n", i+1, src.Title, src.URL)
			}
		}
		fmt.Println()
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// handleChatCommand handles slash commands, returns true on exit.
func handleChatCommand(input string, sess *client.Session, toolsEnabled *bool) bool {
	switch strings.Fields(input)[0] {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help   Show this help")
		fmt.Println("  /tools  Toggle tool calling")
		fmt.Println("  /reset  Start a new conversation")
		fmt.Println("  /exit   Quit")
		fmt.Println()

	case "/tools":
		*toolsEnabled = !*toolsEnabled
		if *toolsEnabled {
			fmt.Println("Tools enabled: getCurrentTime, calculate, webSearch")
		} else {
			fmt.Println("Tools disabled")
		}
		fmt.Println()

	case "/reset", "/clear":
		sess.Reset()
		sess.BrowserID = uuid.NewString()
		fmt.Println("Conversation cleared")
		fmt.Println()

	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		return true

	default:
		fmt.Printf("Unknown command: %s\n", input)
		fmt.Println("Type /help to see available commands")
		fmt.Println()
	}

	return false
}
