package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spigell/referral-matcher/internal/nudge"
	"github.com/spigell/referral-matcher/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a profile against one job, or rank it against a list of jobs",
	Example: `  referral-matcher score --profile ada.json --job backend.json
  referral-matcher score --profile ada.json --job openings.json --preset candidate-rank
  referral-matcher score --profile ada.json --job backend.json --interactive`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	addPairFlags(scoreCmd)
}

// addPairFlags registers the inputs shared by score and nudge.
func addPairFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("profile", "p", "", "JSON file with the candidate profile")
	cmd.Flags().String("job", "", "JSON file with a job posting, or a list of them")
	cmd.Flags().String("preset", "", "scoring preset: "+strings.Join(presetNames(), ", "))
	cmd.Flags().BoolP("interactive", "i", false, "pick the preset from a menu")

	cmd.MarkFlagRequired("profile")
	cmd.MarkFlagRequired("job")
}

func score(cmd *cobra.Command) error {
	if err := scoring.ValidatePresets(); err != nil {
		return fmt.Errorf("validating scoring presets: %w", err)
	}

	profile, jobs, err := readPair(cmd)
	if err != nil {
		return err
	}

	preset, err := resolvePreset(cmd)
	if err != nil {
		return err
	}

	if len(jobs) == 1 {
		return printJSON(scoring.Score(profile, jobs[0], preset))
	}
	return printJSON(nudge.Rank(profile, jobs, preset))
}

func readPair(cmd *cobra.Command) (scoring.Profile, []scoring.JobPosting, error) {
	var profile scoring.Profile
	if err := readJSONFile(cmd.Flag("profile").Value.String(), &profile); err != nil {
		return profile, nil, fmt.Errorf("reading profile: %w", err)
	}

	jobs, err := readJobs(cmd.Flag("job").Value.String())
	if err != nil {
		return profile, nil, fmt.Errorf("reading jobs: %w", err)
	}
	return profile, jobs, nil
}

// readJobs accepts a single posting or a JSON array of postings.
func readJobs(path string) ([]scoring.JobPosting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var jobs []scoring.JobPosting
		if err := json.Unmarshal(data, &jobs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(jobs) == 0 {
			return nil, fmt.Errorf("%s has no jobs", path)
		}
		return jobs, nil
	}

	var job scoring.JobPosting
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []scoring.JobPosting{job}, nil
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// resolvePreset takes --preset, falls back to a menu with --interactive and
// to network-fit otherwise.
func resolvePreset(cmd *cobra.Command) (scoring.Preset, error) {
	name := cmd.Flag("preset").Value.String()
	interactive, _ := cmd.Flags().GetBool("interactive")

	if name == "" && interactive {
		prompt := promptui.Select{
			Label: "Choose a scoring preset",
			Items: presetNames(),
		}
		_, selected, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				return "", errors.New("preset selection aborted")
			}
			return "", err
		}
		name = selected
	}

	return scoring.ParsePreset(name)
}

func presetNames() []string {
	presets := scoring.Presets()
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.String())
	}
	return names
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
