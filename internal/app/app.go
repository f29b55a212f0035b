// Package app assembles the mail core from configuration. The server, worker
// and operator CLI share it so every binary wires the same components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/courtside/mailer/internal/api"
	"github.com/courtside/mailer/internal/cache"
	"github.com/courtside/mailer/internal/config"
	"github.com/courtside/mailer/internal/dispatch"
	"github.com/courtside/mailer/internal/pkg/distlock"
	"github.com/courtside/mailer/internal/pkg/logger"
	"github.com/courtside/mailer/internal/provider"
	"github.com/courtside/mailer/internal/render"
	"github.com/courtside/mailer/internal/repository/postgres"
	"github.com/courtside/mailer/internal/service/ledger"
	"github.com/courtside/mailer/internal/service/sending"
	"github.com/courtside/mailer/internal/webhook"
)

var log = logger.Named("app")

// App holds the long-lived handles and the services built on them.
type App struct {
	Config *config.Config

	DB    *sql.DB
	Redis *redis.Client // nil when no Redis URL is configured
	SQS   *sqs.Client   // nil when no dispatch queue is configured

	Templates *cache.TemplateCache // nil when Redis is not configured
	Renderer  *render.Renderer
	Provider  *provider.Client
	Whitelist *sending.Whitelist
	Sender    *sending.Service
	Ledger    *ledger.Service
}

// ConfigureLogging applies the logging section of cfg.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// New connects to Postgres, Redis (optional) and SQS (optional) and builds
// the services. Close releases the connections.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	if cfg.Redis.URL != "" {
		if a.Redis, err = cache.Connect(ctx, cfg.Redis.URL); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		log.Warn("redis not configured: template cache disabled, dispatch locks use postgres")
	}

	if cfg.Dispatch.QueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Dispatch.Region))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		a.SQS = sqs.NewFromConfig(awsCfg)
	}

	a.build()
	return a, nil
}

func (a *App) build() {
	cfg := a.Config

	var templates render.TemplateStore = postgres.NewTemplateRepo(a.DB)
	if a.Redis != nil {
		a.Templates = cache.NewTemplateCache(a.Redis, templates, cfg.Redis.TemplateTTL())
		templates = a.Templates
	}
	a.Renderer = render.NewRenderer(templates, RenderOptions(cfg))

	a.Provider = provider.NewClient(cfg.Provider)
	if !a.Provider.Configured() {
		log.Warn("email provider api key not configured: every send will fail")
	}

	a.Ledger = ledger.NewService(postgres.NewLedgerRepo(a.DB))
	a.Whitelist = sending.ParseWhitelist(cfg.Delivery.AllowList)
	if a.Whitelist.Enabled() {
		log.Info("recipient allow-list active", "environment", cfg.Delivery.Environment,
			"entries", a.Whitelist.Size())
	}
	a.Sender = sending.NewService(a.Provider, a.Ledger, a.Whitelist, SendingOptions(cfg))
}

// RenderOptions derives renderer settings from cfg.
func RenderOptions(cfg *config.Config) render.Options {
	return render.Options{
		SiteURL:        cfg.Delivery.SiteURL,
		UnsubscribeURL: cfg.Delivery.UnsubscribeURL(),
	}
}

// SendingOptions derives sending settings from cfg on top of the default
// retry and pacing policy.
func SendingOptions(cfg *config.Config) sending.Options {
	opts := sending.DefaultOptions()
	opts.From = cfg.Provider.From
	opts.ReplyTo = cfg.Provider.ReplyTo
	opts.UnsubscribeURL = cfg.Delivery.UnsubscribeURL()
	return opts
}

// Webhook returns the provider callback handler. An empty signing secret
// yields a handler that answers 500.
func (a *App) Webhook() *webhook.Handler {
	if a.Config.Webhook.SigningSecret == "" {
		log.Error("webhook signing secret not configured: callbacks will be rejected")
	}
	verifier := webhook.NewVerifier(a.Config.Webhook.SigningSecret, a.Config.Webhook.Tolerance())
	return webhook.NewHandler(verifier, a.Ledger)
}

// Publisher returns the campaign job publisher, or nil without a queue.
func (a *App) Publisher() *dispatch.Publisher {
	if a.SQS == nil {
		return nil
	}
	return dispatch.NewPublisher(a.SQS, a.Config.Dispatch.QueueURL)
}

// Consumer returns the campaign queue consumer.
func (a *App) Consumer() (*dispatch.Consumer, error) {
	if a.SQS == nil {
		return nil, errors.New("dispatch queue url not configured")
	}
	locks := distlock.NewFactory(a.Redis, a.DB, a.Config.Dispatch.LockTTL())
	processor := dispatch.NewProcessor(postgres.NewRecipientRepo(a.DB), a.Renderer, a.Sender, locks)
	return dispatch.NewConsumer(a.SQS, a.Config.Dispatch.QueueURL, processor, dispatch.ConsumerOptions{
		WaitTimeSeconds:   int32(a.Config.Dispatch.WaitTimeSeconds),
		VisibilityTimeout: int32(a.Config.Dispatch.VisibilityTimeout),
	}), nil
}

// APIDeps returns the HTTP API collaborators.
func (a *App) APIDeps() api.Deps {
	deps := api.Deps{
		Renderer: a.Renderer,
		Sender:   a.Sender,
		Ledger:   a.Ledger,
		Webhook:  a.Webhook(),
		Health:   api.NewHealthChecker(a.DB, a.Redis),
	}
	// A nil *dispatch.Publisher must not become a non-nil interface.
	if p := a.Publisher(); p != nil {
		deps.Publisher = p
	}
	return deps
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn("database close failed", "err", err)
		}
	}
}
