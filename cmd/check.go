package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/arisa/internal/engine"
	"github.com/danielolaszy/arisa/internal/logging"
)

var checkSince time.Duration

var checkCmd = &cobra.Command{
	Use:   "check KEY...",
	Short: "Run the rule modules once against the given tickets",
	Long: `This command fetches each named ticket and runs every enabled rule module
against it once, applying their actions. The dedup cache is not consulted.
Content added within --since counts as new, as it would for a poll cycle.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		lastRun := time.Now().Add(-checkSince)
		failed := 0
		for _, key := range args {
			outcomes, err := a.poller.ProcessTicket(ctx, key, lastRun)
			if err != nil {
				fmt.Printf("Error checking %s: %v\n", key, err)
				failed++
				continue
			}
			if len(outcomes) == 0 {
				fmt.Printf("%s was recently resolved by a human, no module ran\n", key)
				continue
			}
			engine.LogOutcomes(logging.GetLogger(), key, a.dispatcher.Names(), outcomes)
		}

		if failed > 0 {
			return fmt.Errorf("failed to check %d of %d tickets", failed, len(args))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().DurationVar(&checkSince, "since", 5*time.Minute, "How far back content counts as new")
}
