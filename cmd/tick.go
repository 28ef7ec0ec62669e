package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/followup/internal/config"
	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/tracing"
)

var tickOnce bool

// tickDrainLimit bounds a draining run; a workflow graph that re-dues
// itself immediately would otherwise tick forever.
const tickDrainLimit = 1000

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run scheduler ticks synchronously",
	Long: `Run the scheduler synchronously without starting the daemon: sweep
trigger events, claim due executions, and process them. By default ticks
repeat until a tick claims nothing, draining the due backlog; --once runs
exactly one tick.

Example:
  followup tick --once`,
	RunE: runTick,
}

func init() {
	rootCmd.AddCommand(tickCmd)

	tickCmd.Flags().BoolVar(&tickOnce, "once", false, "run exactly one tick")
}

func runTick(cmd *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	contacts := contact.NewService(store.Contacts(), store.ContactEvents())
	defer contacts.Close()

	traces, err := tracing.NewProvider(tracing.Config{Enabled: false})
	if err != nil {
		return err
	}
	sched, err := buildEngine(store, contacts, metrics.New(), traces.Tracer())
	if err != nil {
		return err
	}

	ticks := 0
	for {
		stats := sched.Tick(cmd.Context())
		ticks++
		fmt.Printf("tick %d: due=%d claimed=%d completed=%d failed=%d waiting=%d\n",
			ticks, stats.Due, stats.Claimed, stats.Completed, stats.Failed, stats.Waiting)
		if tickOnce || stats.Claimed == 0 {
			break
		}
		if ticks >= tickDrainLimit {
			return fmt.Errorf("stopped after %d ticks with work still claiming; check for a self-scheduling workflow", ticks)
		}
	}
	return nil
}
