package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/nsstore/internal/app"
	"github.com/zjrosen/nsstore/internal/counter"
	"github.com/zjrosen/nsstore/internal/flags"
	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
	"github.com/zjrosen/nsstore/internal/presentation"
	"github.com/zjrosen/nsstore/internal/pubsub"
	"github.com/zjrosen/nsstore/internal/store"
)

var (
	demoCounters  int
	demoDelay     time.Duration
	demoJSON      bool
	demoFollowLog bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a counter list scenario and print the final namespaces",
	Long: `Run a scripted scenario against an in-process store.

The demo creates a CounterList owning --counters counters, adds to each one
through the processor, schedules a delayed increment on the first counter,
shows a validation rejection and removes the last counter before printing
every live namespace.

Examples:
  nsstore demo
  nsstore demo --counters 5 --delay 1s
  nsstore demo --follow-log
  nsstore demo --json | jq '.[].state'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if demoCounters < 1 {
			return fmt.Errorf("--counters must be at least 1, got %d", demoCounters)
		}
		if demoFollowLog {
			if cfg.Flags == nil {
				cfg.Flags = map[string]bool{}
			}
			cfg.Flags[flags.FlagActionLog] = true
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.Background()) }()

		if demoFollowLog {
			go printActionLog(pubsub.NewListener[pipeline.ActionLogEvent](ctx, a.ActionLog), cmd.ErrOrStderr())
			// With --debug, warnings such as validation rejections are echoed too.
			if warnings := log.NewListener(ctx, log.LevelWarn); warnings != nil {
				go printLogEntries(warnings, cmd.ErrOrStderr())
			}
		}

		if err := runDemo(ctx, a, cmd.ErrOrStderr()); err != nil {
			return err
		}

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		dtos := presentation.FromState(a.Store.GetState())
		if demoJSON {
			return formatter.FormatJSON(dtos)
		}
		return formatter.FormatNamespaces(dtos)
	},
}

func init() {
	demoCmd.Flags().IntVarP(&demoCounters, "counters", "n", 3, "number of counters in the list")
	demoCmd.Flags().DurationVar(&demoDelay, "delay", 200*time.Millisecond, "delay of the deferred increment")
	demoCmd.Flags().BoolVar(&demoJSON, "json", false, "print namespaces as JSON")
	demoCmd.Flags().BoolVar(&demoFollowLog, "follow-log", false, "print every dispatch to stderr")
	rootCmd.AddCommand(demoCmd)
}

// runDemo drives the scenario and waits for the deferred increment to land.
func runDemo(ctx context.Context, a *app.App, stderr io.Writer) error {
	list, err := counter.NewList(ctx, a.Store, "demo", counter.CounterTypeName)
	if err != nil {
		return err
	}

	children := make([]namespace.Key, 0, demoCounters)
	for i := 0; i < demoCounters; i++ {
		child, err := list.Add(ctx)
		if err != nil {
			return fmt.Errorf("adding counter: %w", err)
		}
		children = append(children, child)
	}

	for i, child := range children {
		if _, err := a.Processor.Dispatch(ctx, namespace.Tag(child, counter.Add{N: i + 1})); err != nil {
			return fmt.Errorf("updating %s: %w", child, err)
		}
	}

	first := children[0]
	if _, err := a.Processor.Dispatch(ctx, namespace.Tag(first, counter.IncrementAfter{Wait: demoDelay})); err != nil {
		return fmt.Errorf("scheduling increment: %w", err)
	}

	if _, err := a.Processor.Dispatch(ctx, namespace.Tag(first, counter.Add{N: 0})); err != nil {
		_, _ = fmt.Fprintf(stderr, "rejected as expected: %v\n", err)
	}

	if len(children) > 1 {
		if err := list.Remove(ctx, children[len(children)-1]); err != nil {
			return fmt.Errorf("removing counter: %w", err)
		}
	}

	// Add{1} plus the delayed increment.
	return waitForCounter(ctx, a.Store, first, 2, demoDelay+2*time.Second)
}

func waitForCounter(ctx context.Context, s *store.Store, key namespace.Key, want int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n, ok := store.SelectAs[int](s.GetState(), key); ok && n >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for deferred increment on %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printActionLog(l *pubsub.Listener[pipeline.ActionLogEvent], w io.Writer) {
	l.Each(func(event pubsub.Event[pipeline.ActionLogEvent]) bool {
		e := event.Payload
		status := "ok"
		if !e.Success {
			status = "error: " + e.Error.Error()
		}
		target := "-"
		if !e.Namespace.IsZero() {
			target = e.Namespace.String()
		}
		_, _ = fmt.Fprintf(w, "%s %-28s %-12s %s\n", e.Timestamp.Format("15:04:05.000"), e.ActionType, target, status)
		return true
	})
}

func printLogEntries(l *log.Listener, w io.Writer) {
	l.Each(func(event pubsub.Event[log.Entry]) bool {
		_, _ = fmt.Fprintln(w, event.Payload.String())
		return true
	})
}
