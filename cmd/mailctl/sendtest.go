package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/service/sending"
)

func newSendTestCmd(flags *globalFlags) *cobra.Command {
	var (
		to   string
		vars []string
	)
	cmd := &cobra.Command{
		Use:   "send-test <template-key>",
		Short: "Send one untracked test message",
		Long: `send-test renders a template and sends it to a single address. Test
sends are tagged test=true and never written to the send ledger. The
allow-list still applies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseVars(vars)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			key := args[0]
			email, err := a.Renderer.Render(cmd.Context(), key, v)
			if err != nil {
				return err
			}
			if email == nil {
				return fmt.Errorf("no active template %q", key)
			}

			res := a.Sender.SendTracked(cmd.Context(), sending.Message{
				To:          domain.RecipientInfo{Email: to},
				Subject:     email.Subject,
				HTML:        email.HTML,
				Text:        email.Text,
				TemplateKey: key,
				IsTest:      true,
			})
			out := cmd.OutOrStdout()
			switch {
			case res.Skipped:
				fmt.Fprintf(out, "skipped: %s is not on the allow-list\n", to)
			case res.Success:
				fmt.Fprintf(out, "sent: %s (attempts %d)\n", res.ProviderMessageID, res.Attempts)
			default:
				return fmt.Errorf("send failed after %d attempts: %s", res.Attempts, res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
