package app

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"tokasu/internal/classify"
	"tokasu/internal/config"
	"tokasu/internal/httpx"
	"tokasu/internal/incident"
	"tokasu/internal/integrations/llm"
	slackbot "tokasu/internal/integrations/slack"
	"tokasu/internal/quota"
	"tokasu/internal/report"
	"tokasu/internal/storage/sqlite"
)

// version is set at build time via -ldflags.
var version = "dev"

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the wired application shared by every subcommand.
type env struct {
	cfg       config.Config
	db        *sqlite.Store
	guard     *quota.Guard
	incidents *incident.Store
	service   *classify.Service
	notifier  *slackbot.Notifier // nil unless Slack is configured
}

func NewRootCmd() *cobra.Command {
	var configPath string
	e := &env{}

	root := &cobra.Command{
		Use:           "tokasu",
		Short:         "Customer-harassment incident classification and reporting",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath = "config.yaml"
				if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
					configPath = envPath
				}
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return e.open(cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return e.close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newServeCmd(e),
		newClassifyCmd(e),
		newQuotaCmd(e),
		newIncidentsCmd(e),
		newReportCmd(e),
		newPruneCmd(e),
	)
	return root
}

func (e *env) open(cfg config.Config) error {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Provider=%s Model=%s MonthlyAILimit=%d ClassifierTimeout=%s Timezone=%s Slack=%t ExternalHTTPTimeout=%s",
		cfg.LLMProvider,
		cfg.LLMModel,
		cfg.MonthlyAILimit,
		cfg.ClassifierTimeout(),
		cfg.Timezone,
		cfg.SlackConfigured(),
		appliedHTTPTimeout,
	)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)

	e.cfg = cfg
	e.db = db
	e.guard = quota.NewGuard(db, cfg.MonthlyAILimit, cfg.Location)
	e.incidents = incident.NewStore(db)

	opts := classify.Options{Timeout: cfg.ClassifierTimeout()}
	if cfg.SlackConfigured() {
		e.notifier = slackbot.NewNotifier(slackbot.NewClient(cfg.SlackBotToken), cfg)
		opts.Notifier = e.notifier
	}
	e.service = classify.NewService(e.guard, e.incidents, llm.NewCompleter(cfg), opts)
	return nil
}

func (e *env) close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func (e *env) renderers() map[string]report.Renderer {
	html := report.HTMLRenderer{Organization: e.cfg.Organization, Location: e.cfg.Location}
	return map[string]report.Renderer{
		"html": html,
		"pdf":  report.PDFRenderer{HTML: html, ChromePath: e.cfg.ChromePath},
	}
}
