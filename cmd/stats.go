package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	internalApp "github.com/haierkeys/psnotes-service/internal/app"
	"github.com/haierkeys/psnotes-service/internal/event"
	"github.com/haierkeys/psnotes-service/internal/routers"
	"github.com/haierkeys/psnotes-service/pkg/logger"
	"github.com/haierkeys/psnotes-service/pkg/natsbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type statsFlags struct {
	config string
	listen string
}

func init() {
	statsEnv := new(statsFlags)

	var statsCommand = &cobra.Command{
		Use:   "stats [-c config_file] [-l listen]",
		Short: "Consume note events from NATS and expose them as Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath(statsEnv.config)
			if err != nil {
				return err
			}
			cfg, _, err := internalApp.LoadConfig(path)
			if err != nil {
				return err
			}
			if !cfg.Nats.Enabled {
				return errors.New("stats requires nats.enabled")
			}

			lg, err := logger.NewLogger(cfg.GetLoggerConfig())
			if err != nil {
				return err
			}
			defer lg.Sync()

			return runStats(cmd.Context(), cfg, statsEnv.listen, lg)
		},
	}

	rootCmd.AddCommand(statsCommand)
	fs := statsCommand.Flags()
	fs.StringVarP(&statsEnv.config, "config", "c", "", "config file")
	fs.StringVarP(&statsEnv.listen, "listen", "l", ":9002", "metrics listen address")
}

func runStats(ctx context.Context, cfg *internalApp.AppConfig, listen string, lg *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := natsbus.Connect(ctx, cfg.GetNatsConfig(), lg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	reg := prometheus.NewRegistry()
	processor := event.NewStatsProcessor(reg, lg)
	if err := processor.Start(ctx, client, cfg.Events.SubjectPrefix); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           listen,
		Handler:        routers.NewPrivateRouterWithLogger(cfg.Server.RunMode, lg, reg),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()
	lg.Info("stats processor started",
		zap.String(logger.FieldSubject, cfg.Events.SubjectPrefix+".>"),
		zap.String("listen", listen))

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
