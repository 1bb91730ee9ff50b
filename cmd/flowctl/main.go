// Command flowctl is a small demo host for the corestream scheduler: it
// builds a pipeline graph (from a YAML topology file, or a built-in
// two-element demo), drives it to PLAYING, and runs the scheduler's
// iterate loop until interrupted or a configured duration elapses.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/graph"
	"github.com/flowsched/corestream/scheduler"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := &cobra.Command{
		Use:   "flowctl",
		Short: "Drive a small cothread-scheduled dataflow pipeline",
		Long: `flowctl builds a pipeline of elements and links, then runs the
corestream scheduler's iterate loop against it -- a minimal host for
exercising the scheduler outside of a test binary.`,
	}

	root.AddCommand(newRunCmd(log), newShowCmd(log))

	if err := root.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func newRunCmd(log *slog.Logger) *cobra.Command {
	var (
		configPath string
		duration   time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and run a pipeline until interrupted or --duration elapses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			return runPipeline(cmd.Context(), log, configPath, duration)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML pipeline topology (default: built-in demo)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 = run until Ctrl-C)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newShowCmd(log *slog.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Build a pipeline and print its element/link state, without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := defaultTopology()
			if configPath != "" {
				loaded, err := loadTopology(configPath)
				if err != nil {
					return err
				}
				t = loaded
			}
			p, err := buildPipeline(t, graph.NewRealClock(), log)
			if err != nil {
				return err
			}
			fmt.Print(p.sched.Show())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML pipeline topology (default: built-in demo)")
	return cmd
}

// slogAdapter lets the scheduler's internal corestream.Logger calls flow
// through the same *slog.Logger the host uses for its own output.
type slogAdapter struct{ log *slog.Logger }

func (a slogAdapter) Log(level corestream.LogLevel, msg string, fields ...corestream.Field) {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	switch level {
	case corestream.LevelDebug:
		a.log.Debug(msg, args...)
	case corestream.LevelWarn:
		a.log.Warn(msg, args...)
	case corestream.LevelError:
		a.log.Error(msg, args...)
	default:
		a.log.Info(msg, args...)
	}
}

func runPipeline(ctx context.Context, log *slog.Logger, configPath string, duration time.Duration) error {
	t := defaultTopology()
	if configPath != "" {
		loaded, err := loadTopology(configPath)
		if err != nil {
			return err
		}
		t = loaded
	}

	p, err := buildPipeline(t, graph.NewRealClock(), log, corestream.WithMetrics(true), corestream.WithLogger(slogAdapter{log}))
	if err != nil {
		return err
	}
	if err := p.start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	log.Info("pipeline playing", "elements", len(p.elements))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down", "reason", ctx.Err())
			return nil
		default:
		}

		status, err := p.sched.Iterate()
		if err != nil {
			var sched *corestream.SchedError
			if errors.As(err, &sched) {
				log.Error("scheduler error", "kind", sched.Kind, "element", sched.Element, "cause", sched.Unwrap())
			}
			return err
		}
		if status == scheduler.Stopped {
			time.Sleep(time.Millisecond)
		}
	}
}
