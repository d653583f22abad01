// Package main is the entry point for the revive server.
// It only handles flags and hands off to internal/server.
// NO business logic belongs here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/infra/storage"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	platformconfig "github.com/gqrshy/tacticalrevive/internal/platform/config"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/platform/optimization"
	platformotel "github.com/gqrshy/tacticalrevive/internal/platform/otel"
	"github.com/gqrshy/tacticalrevive/internal/server"
)

var (
	addrFlag    string
	dbFlag      string
	profileFlag string
	devFlag     bool
	entityFlag  string
)

func main() {
	root := &cobra.Command{
		Use:           "revive-server",
		Short:         "Authoritative downed-state server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbFlag, "db", "", "sqlite path (overrides TACTICALREVIVE_DB_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the tick loop, websocket hub and HTTP API",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides TACTICALREVIVE_ADDR)")
	serve.Flags().StringVar(&profileFlag, "profile", "", "tuning profile: default, stress or low")
	serve.Flags().BoolVar(&devFlag, "dev", false, "human readable debug logs")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print persisted downed records and recaps",
		RunE:  runInspect,
	}
	inspect.Flags().StringVar(&entityFlag, "entity", "", "only this entity id")

	root.AddCommand(serve, inspect)
	if err := root.Execute(); err != nil {
		platformconfig.Exitf("revive-server: %v", err)
	}
}

func loadConfig() config.Config {
	cfg, adjusted, err := config.Load()
	if err != nil {
		platformconfig.Exitf("revive-server: %v", err)
	}
	for _, note := range adjusted {
		fmt.Fprintln(os.Stderr, "config:", note)
	}
	if dbFlag != "" {
		cfg.Server.DBPath = dbFlag
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if profileFlag != "" {
		cfg.Server.Profile = profileFlag
	}
	return cfg
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()

	log := logger.NewLogger()
	if devFlag {
		log = logger.NewDevelopment()
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := platformotel.Setup(ctx, "revive-server")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	tuning, err := optimization.ForProfile(cfg.Server.Profile)
	if err != nil {
		return err
	}

	log.Info("Starting revive server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("db", cfg.Server.DBPath),
		zap.String("profile", cfg.Server.Profile),
		zap.Duration("tick", cfg.Server.TickInterval),
		zap.Int("bleeding_time_ticks", cfg.Revive.BleedingTimeTicks),
	)

	srv, err := server.New(server.Options{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewCollector(),
		Tuning:  tuning,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	ctx := cmd.Context()

	db, err := storage.InitSQLite(cfg.Server.DBPath, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	docs := storage.NewSQLiteDocumentRepository(db)
	recaps := storage.NewReconstructor(storage.NewSQLiteEventRepository(db))

	ids, err := docs.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d saved entities\n", len(ids))
	for _, id := range ids {
		if entityFlag != "" && id.String() != entityFlag {
			continue
		}
		rec, err := persistence.Load(ctx, docs, id)
		if err != nil {
			fmt.Fprintf(out, "%s  corrupt record: %v\n", id, err)
		} else if rec.Bleeding {
			fmt.Fprintf(out, "%s  DOWNED timeLeft=%d downedTime=%d progress=%.1f\n",
				id, rec.TimeLeft, rec.DownedTime, rec.ReviveProgress)
		} else {
			fmt.Fprintf(out, "%s  healthy\n", id)
		}

		recap, err := recaps.Rebuild(ctx, id.String())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "    downs=%d revives=%d deaths=%d give-ups=%d helped=%d was-helped=%d\n",
			recap.Downs, recap.Revives, recap.Deaths, recap.GiveUps, recap.HelpsGiven, recap.HelpsGot)
	}
	return nil
}
