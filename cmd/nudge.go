package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/referral-matcher/internal/logger"
	"github.com/spigell/referral-matcher/internal/nudge"
	"github.com/spigell/referral-matcher/internal/scoring"
	"go.uber.org/zap"
)

var nudgeCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Write referral nudges for a profile and one or more jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNudge(cmd)
	},
}

func init() {
	rootCmd.AddCommand(nudgeCmd)
	addPairFlags(nudgeCmd)

	nudgeCmd.Flags().String("context", "", "extra guidance passed to the model")
	nudgeCmd.Flags().String("scope", "", "budget scope charged for AI calls (default global)")
}

func runNudge(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	if err := scoring.ValidatePresets(); err != nil {
		logger.Fatal("validating scoring presets", zap.Error(err))
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	profile, jobs, err := readPair(cmd)
	if err != nil {
		return err
	}

	preset, err := resolvePreset(cmd)
	if err != nil {
		return err
	}

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring components", zap.Error(err))
	}
	defer c.Close()

	opts := nudge.Options{
		Preset: preset,
		Scope:  cmd.Flag("scope").Value.String(),
		Note:   cmd.Flag("context").Value.String(),
	}

	outcomes := make([]nudge.Outcome, 0, len(jobs))
	for _, ranked := range nudge.Rank(profile, jobs, preset) {
		if err := ctx.Err(); err != nil {
			return errors.New("interrupted")
		}

		out := c.nudges.Generate(ctx, profile, ranked.Job, opts)
		if out.Nudge == nil {
			logger.Info("skipping weak match",
				zap.String("job_id", ranked.Job.ID),
				zap.Int("overall", ranked.Breakdown.Overall),
			)
			continue
		}
		outcomes = append(outcomes, out)
	}

	logger.Info("nudges written", zap.Int("count", len(outcomes)), zap.Int("jobs", len(jobs)))
	return printJSON(outcomes)
}
