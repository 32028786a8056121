package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/resume-updater/internal/api"
	"github.com/spigell/resume-updater/internal/consumer"
	"github.com/spigell/resume-updater/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API and, when configured, consume key member events from Kafka",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides api.addr)")
	viper.BindPFlag("api.addr", serveCmd.Flags().Lookup("addr"))
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := setup(ctx)
	if err != nil {
		if log != nil {
			log.Error("setup failed", zap.Error(err))
		}
		return err
	}
	defer a.Close()

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(a.processor, a.reviewer, a.feedback, a.config.API.DefaultEmployee)
	router := api.NewRouter(handler, a.metrics, logger.Named(log, "http"))

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return api.Serve(gctx, a.config.API.Addr, router, log)
	})

	if a.config.Kafka.Enabled {
		reader := consumer.NewReader(a.config.Kafka)
		c := consumer.New(reader, a.processor, log)
		group.Go(func() error {
			log.Info("consuming key member events",
				zap.Strings("brokers", a.config.Kafka.Brokers),
				zap.String("topic", a.config.Kafka.Topic),
			)
			return c.Run(gctx)
		})
	}

	if err := group.Wait(); err != nil {
		log.Error("serve stopped with an error", zap.Error(err))
		return err
	}

	log.Info("exiting", zap.String("reason", "shutdown requested"))
	return nil
}
