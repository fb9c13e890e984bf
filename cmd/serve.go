package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/referral-matcher/internal/logger"
	"github.com/spigell/referral-matcher/internal/scoring"
	"github.com/spigell/referral-matcher/internal/server"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scores, nudges and AI artifacts over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	serveCmd.Flags().Bool("trust-proxy", false, "take the client address from X-Forwarded-For")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("trust-proxy", serveCmd.Flags().Lookup("trust-proxy"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	// Weight sets are static; a broken one must stop the process before it
	// serves a single score.
	if err := scoring.ValidatePresets(); err != nil {
		logger.Fatal("validating scoring presets", zap.Error(err))
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the referral-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring components", zap.Error(err))
	}
	defer c.Close()

	if err := c.janitor.Start(); err != nil {
		logger.Fatal("starting janitor", zap.Error(err))
	}
	defer c.janitor.Stop()

	srv := server.New(server.Config{
		Listen:     config.Listen,
		TrustProxy: config.TrustProxy,
	}, server.Deps{
		Records:   c.records,
		Artifacts: c.orch,
		Nudges:    c.nudges,
		Budget:    c.guard,
		Limiter:   c.limiter,
	}, logger.Named("http"))

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
