package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// NewChatCmd creates the interactive chat command
func NewChatCmd(env *Env) *cobra.Command {
	var (
		sessionID string
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in an interactive session",
		Long: `Start a conversation with the assistant. Every line is one turn;
type "exit" or "quit" (or send EOF) to leave. Use --session to resume an
existing session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := env.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			if sessionID == "" {
				sessionID, err = svc.Chat.NewSession(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n\n", services.WelcomeMessage)
			} else if _, err := svc.Chat.History(ctx, sessionID); err != nil {
				return fmt.Errorf("session %s: %w", sessionID, err)
			}
			fmt.Fprintf(out, "Session: %s\n", sessionID)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				resp, err := svc.Chat.ProcessTurn(ctx, services.TurnRequest{
					Message:   line,
					SessionID: sessionID,
					UserID:    userID,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s\n", resp.Response)
				if len(resp.ToolCallsMade) > 0 {
					fmt.Fprintf(out, "(tools: %s)\n", strings.Join(resp.ToolCallsMade, ", "))
				}
				if !resp.Success {
					fmt.Fprintf(out, "(error: %s)\n", resp.Error)
				}
				fmt.Fprintln(out)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session")
	cmd.Flags().StringVar(&userID, "user", services.DefaultUserID, "User id owning the session")

	return cmd
}
