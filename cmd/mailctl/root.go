package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courtside/mailer/internal/app"
	"github.com/courtside/mailer/internal/config"
	"github.com/courtside/mailer/internal/render"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

// openApp is replaced in tests.
var openApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:   "mailctl",
		Short: "Operator tooling for the Courtside mail core",
		Long: `mailctl renders stored templates, signs webhook payloads for local
testing, sends untracked test messages and drops cached templates.

Example:
  mailctl render welcome --var first_name=Ana
  mailctl sign --secret whsec_... --id msg_1 payload.json
  mailctl send-test welcome --to qa@courtside.app --var first_name=Ana
  mailctl flush-template welcome`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (env vars override it)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newRenderCmd(&flags))
	root.AddCommand(newSignCmd())
	root.AddCommand(newSendTestCmd(&flags))
	root.AddCommand(newFlushTemplateCmd(&flags))
	return root
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	app.ConfigureLogging(cfg.Logging)
	return cfg, nil
}

// parseVars turns repeated --var k=v flags into template variables.
func parseVars(pairs []string) (render.Vars, error) {
	vars := render.Vars{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q: want key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}
