package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courtside/mailer/internal/render"
)

func newRenderCmd(flags *globalFlags) *cobra.Command {
	var (
		vars   []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "render <template-key>",
		Short: "Render a stored template and report missing variables",
		Args:  cobra.ExactArgs(1),
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

			preview, err := a.Renderer.Preview(cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			if preview == nil {
				return fmt.Errorf("no active template %q", args[0])
			}
			return printPreview(cmd, preview, asJSON)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the preview as JSON")
	return cmd
}

func printPreview(cmd *cobra.Command, p *render.Preview, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	fmt.Fprintf(out, "Subject: %s\n", p.Email.Subject)
	if p.Validation.Valid {
		fmt.Fprintln(out, "Variables: ok")
	} else {
		fmt.Fprintf(out, "Variables: missing %s\n", strings.Join(p.Validation.Missing, ", "))
	}
	fmt.Fprintf(out, "\n--- text ---\n%s\n\n--- html ---\n%s\n", p.Email.Text, p.Email.HTML)
	return nil
}
