package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtside/mailer/internal/webhook"
)

// now is replaced in tests.
var now = time.Now

func newSignCmd() *cobra.Command {
	var (
		secret    string
		id        string
		timestamp int64
	)
	cmd := &cobra.Command{
		Use:   "sign <body-file|->",
		Short: "Print webhook signature headers for a payload",
		Long: `sign computes the three signature headers the provider sends with a
delivery callback, so a payload can be replayed against a local server:

  mailctl sign --secret "$EMAIL_WEBHOOK_SECRET" --id msg_1 event.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("EMAIL_WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or EMAIL_WEBHOOK_SECRET is required")
			}
			body, err := readBody(cmd, args[0])
			if err != nil {
				return err
			}
			at := now()
			if timestamp > 0 {
				at = time.Unix(timestamp, 0)
			}
			h := webhook.Sign(secret, id, at, body)
			out := cmd.OutOrStdout()
			for _, name := range []string{webhook.HeaderID, webhook.HeaderTimestamp, webhook.HeaderSignature} {
				fmt.Fprintf(out, "%s: %s\n", name, h.Get(name))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to EMAIL_WEBHOOK_SECRET)")
	cmd.Flags().StringVar(&id, "id", "", "message id for the svix-id header")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix timestamp to sign (default now)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
