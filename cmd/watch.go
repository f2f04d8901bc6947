package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	watchOpts     = runOptions{checkpointAt: -1}
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run a scenario every time its file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := watchOpts
		opts.seedSet = cmd.Flags().Changed("seed")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		out := cmd.OutOrStdout()
		return watchScenario(ctx, opts.configPath, watchDebounce, func() error {
			return runScenario(opts, out)
		})
	},
}

// watchScenario calls run once, then again after every write to path, until
// ctx is done. A failing run is logged and does not stop the watch. Events
// closer than debounce are coalesced.
func watchScenario(ctx context.Context, path string, debounce time.Duration, run func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	rerun := func() {
		if err := run(); err != nil {
			logrus.Errorf("run of %s failed: %v", path, err)
		}
	}
	rerun()

	var pending <-chan time.Time // nil until a change arrives
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			logrus.Debugf("%s changed (%s)", path, ev.Op)
			pending = time.After(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("watch error: %v", err)
		case <-pending:
			pending = nil
			rerun()
		}
	}
}

func init() {
	addScenarioFlags(watchCmd, &watchOpts)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 200*time.Millisecond, "Quiet period after a change before re-running")
}
