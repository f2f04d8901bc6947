package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/ccsim/sim/center"
	"github.com/inference-sim/ccsim/sim/router"
	"github.com/inference-sim/ccsim/sim/trace"
)

// runOptions holds everything one simulation run needs besides the scenario file.
type runOptions struct {
	configPath    string
	seed          int64
	seedSet       bool
	horizon       float64 // overrides the scenario when positive
	traceOut      string
	traceLevel    string
	checkpointAt  float64 // negative: no checkpoint
	checkpointOut string
	resume        string
}

var runOpts = runOptions{checkpointAt: -1, traceLevel: string(trace.TraceLevelDecisions)}

// runCmd executes one scenario and prints its metrics
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a contact-center scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOpts
		opts.seedSet = cmd.Flags().Changed("seed")
		return runScenario(opts, cmd.OutOrStdout())
	},
}

// traceFile is the on-disk layout of --trace-out.
type traceFile struct {
	RunID    string                `json:"run_id" yaml:"run_id"`
	Summary  *trace.TraceSummary   `json:"summary" yaml:"summary"`
	Routings []trace.RoutingRecord `json:"routings" yaml:"routings"`
	Exits    []trace.ExitRecord    `json:"exits" yaml:"exits"`
}

func runScenario(opts runOptions, w io.Writer) error {
	if !trace.IsValidTraceLevel(opts.traceLevel) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", opts.traceLevel)
	}
	sc, err := center.LoadScenario(opts.configPath)
	if err != nil {
		return err
	}
	if opts.seedSet {
		sc.Seed = opts.seed
	}
	if opts.horizon > 0 {
		sc.Horizon = opts.horizon
	}

	c, err := center.Build(sc)
	if err != nil {
		return fmt.Errorf("building scenario %s: %w", opts.configPath, err)
	}
	runID := uuid.NewString()

	var st *trace.SimulationTrace
	if opts.traceOut != "" {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(opts.traceLevel)}, runID)
		c.SetTrace(st)
	}

	if opts.resume != "" {
		data, err := os.ReadFile(opts.resume)
		if err != nil {
			return fmt.Errorf("reading checkpoint: %w", err)
		}
		snap, err := router.DecodeState(data)
		if err != nil {
			return err
		}
		if err := c.Restore(snap); err != nil {
			return err
		}
	}

	if opts.checkpointAt >= 0 {
		if opts.checkpointAt < c.Simulator().Now() {
			return fmt.Errorf("--checkpoint-at %f is before the start time %f", opts.checkpointAt, c.Simulator().Now())
		}
		out := opts.checkpointOut
		if out == "" {
			out = fmt.Sprintf("ccsim-%s.ckpt", runID)
		}
		c.ScheduleCheckpoint(opts.checkpointAt, func(snap *router.RouterState) error {
			data, err := router.EncodeState(snap)
			if err != nil {
				return err
			}
			if logrus.IsLevelEnabled(logrus.DebugLevel) {
				diag, err := router.DiagnoseState(data)
				if err != nil {
					return err
				}
				logrus.Debugf("checkpoint at %.3f: %s", snap.Time, diag)
			}
			logrus.Infof("writing checkpoint to %s", out)
			return os.WriteFile(out, data, 0o644)
		})
	}

	logrus.Infof("Starting run %s of scenario %q (seed %d, horizon %.3f)", runID, sc.Name, sc.Seed, sc.Horizon)
	startTime := time.Now()
	m, runErr := c.Run()
	logrus.Infof("Run %s finished in %s", runID, time.Since(startTime))

	m.Print(w, c.TypeNames())
	if st != nil {
		if err := writeTrace(opts.traceOut, runID, st); err != nil {
			return err
		}
	}
	return runErr
}

// writeTrace saves the decision trace as JSON when path ends in .json and as
// YAML otherwise.
func writeTrace(path, runID string, st *trace.SimulationTrace) error {
	tf := traceFile{
		RunID:    runID,
		Summary:  trace.Summarize(st),
		Routings: st.Routings,
		Exits:    st.Exits,
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(tf, "", "  ")
	} else {
		data, err = yaml.Marshal(tf)
	}
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}

func init() {
	addScenarioFlags(runCmd, &runOpts)
	runCmd.Flags().StringVar(&runOpts.traceOut, "trace-out", "", "Write the routing decision trace to this file (.json or .yaml)")
	runCmd.Flags().StringVar(&runOpts.traceLevel, "trace-level", string(trace.TraceLevelDecisions), "Trace detail written to --trace-out (none, decisions)")
	runCmd.Flags().Float64Var(&runOpts.checkpointAt, "checkpoint-at", -1, "Save a router snapshot at this simulation time")
	runCmd.Flags().StringVar(&runOpts.checkpointOut, "checkpoint-out", "", "Snapshot file (default ccsim-<run id>.ckpt)")
	runCmd.Flags().StringVar(&runOpts.resume, "resume", "", "Resume from a snapshot written by --checkpoint-at")
}

// addScenarioFlags registers the flags shared by run and watch.
func addScenarioFlags(c *cobra.Command, opts *runOptions) {
	c.Flags().StringVar(&opts.configPath, "config", "", "Scenario file (.yaml, .yml or .toml)")
	c.Flags().Int64Var(&opts.seed, "seed", 0, "Override the scenario seed")
	c.Flags().Float64Var(&opts.horizon, "horizon", 0, "Override the scenario horizon")
	_ = c.MarkFlagRequired("config")
}
