package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/medeval/internal/client"
	"github.com/xiaot623/medeval/internal/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run an interactive evaluation against the HTTP API",
	Long: `Start or resume an evaluation session for a trainee and answer the
interviewer's questions from the terminal.

Commands:
  /retry   ask again for a reply that failed
  /finish  finalize the session and print the summary
  /quit    leave without finalizing (the session stays open)`,
	RunE: runChat,
}

var chatFlags struct {
	server  string
	token   string
	subject string
}

func init() {
	f := chatCmd.Flags()
	f.StringVar(&chatFlags.server, "server", "", "API base URL (default http://localhost:<HTTP_PORT>)")
	f.StringVar(&chatFlags.token, "token", os.Getenv("MEDEVAL_TOKEN"), "bearer token (default $MEDEVAL_TOKEN)")
	f.StringVar(&chatFlags.subject, "subject", "", "trainee user id")
	_ = chatCmd.MarkFlagRequired("subject")
}

func runChat(cmd *cobra.Command, args []string) error {
	server := chatFlags.server
	if server == "" {
		server = fmt.Sprintf("http://localhost:%d", cfg.HTTPPort)
	}
	api := client.New(server, chatFlags.token, cfg.ModelTimeout+30*time.Second)
	return chat(cmd.Context(), api, chatFlags.subject, cmd.InOrStdin(), cmd.OutOrStdout(), newMarkdownRenderer())
}

// chat drives one evaluation session from line-oriented input.
func chat(ctx context.Context, api *client.Client, subjectID string, in io.Reader, out io.Writer, md *markdownRenderer) error {
	started, err := api.StartSession(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	sessionID := started.SessionID

	if started.Resumed {
		fmt.Fprintf(out, "Resuming session %s\n\n", sessionID)
		messages, err := api.Transcript(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load transcript: %w", err)
		}
		for _, m := range messages {
			if m.Sender == domain.SenderAssistant {
				md.Print(out, m.Content)
			} else {
				fmt.Fprintf(out, "> %s\n", m.Content)
			}
		}
		if len(messages) == 0 {
			if err := ask(ctx, out, md, func() (string, error) { return api.SubmitTurn(ctx, sessionID, domain.InitSentinel) }); err != nil {
				return err
			}
		}
	} else {
		fmt.Fprintf(out, "Started session %s\n\n", sessionID)
		if err := ask(ctx, out, md, func() (string, error) { return api.SubmitTurn(ctx, sessionID, domain.InitSentinel) }); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())

		switch input {
		case "":
			continue
		case "/quit":
			fmt.Fprintf(out, "Session %s left open.\n", sessionID)
			return nil
		case "/retry":
			err = ask(ctx, out, md, func() (string, error) { return api.RetryTurn(ctx, sessionID) })
		case "/finish":
			fmt.Fprintln(out, "Generating summary...")
			resp, err := api.Finalize(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to finalize session: %w", err)
			}
			md.Print(out, "## Summary\n\n"+resp.Summary)
			return nil
		default:
			err = ask(ctx, out, md, func() (string, error) { return api.SubmitTurn(ctx, sessionID, input) })
		}
		if err != nil {
			return err
		}
	}
}

// ask runs one model-backed call. Client faults and model failures are
// reported and the loop continues; anything else ends the chat.
func ask(ctx context.Context, out io.Writer, md *markdownRenderer, call func() (string, error)) error {
	reply, err := call()
	if err == nil {
		md.Print(out, reply)
		return nil
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status != 401 && apiErr.Status != 403 && apiErr.Status != 404 {
		fmt.Fprintf(out, "! %s\n", apiErr.Message)
		if apiErr.Code == string(domain.KindUpstreamModel) {
			fmt.Fprintln(out, "  Type /retry to ask again.")
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
