package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"kb-auditor/internal/auditor"
	"kb-auditor/internal/config"
	"kb-auditor/internal/shared/infra"
	"kb-auditor/internal/verdict"
	"kb-auditor/pkg/logging"
)

var (
	configDir string
	inMemory  bool
)

var rootCmd = &cobra.Command{
	Use:           "auditor",
	Short:         "Knowledge base auditor",
	Long:          "Audits stored agent answers with an LLM, removes or flags wrong ones and serves the human review API.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding common.yaml and {env}.yaml (default: ./configs)")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "Use in-process store, queue and locks instead of the configured backends (local development, data is lost on exit)")
}

// app 命令共用的依赖
type app struct {
	cfg    *config.Config
	infra  *infra.Infrastructure
	logger *logging.Logger
}

func loadApp(ctx context.Context) (*app, error) {
	if configDir != "" {
		config.SetConfigDir(configDir)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Printf("Config: %s", cfg.String())

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "auditor",
	})

	if inMemory {
		logger.Warn("using in-process backends; nothing is shared or persisted")
		return &app{cfg: cfg, infra: infra.NewInMemory(), logger: logger}, nil
	}
	i, err := infra.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, infra: i, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.infra.Close(); err != nil {
		a.logger.WithError(err).Warn("closing infrastructure")
	}
}

// newAuditor 构造审核器，指标注册到 reg
func (a *app) newAuditor(reg prometheus.Registerer) (*auditor.Auditor, error) {
	provider, err := verdict.NewProvider(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	engine := verdict.NewEngine(provider, a.cfg.LLM.Timeout, a.logger)

	return auditor.New(a.infra.Store, a.infra.Queue, a.infra.Locker, engine,
		auditor.ConfigFrom(a.cfg),
		auditor.WithMetrics(auditor.NewMetrics(reg)),
		auditor.WithLogger(a.logger),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
