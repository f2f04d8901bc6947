package center

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/ccsim/sim/router"
	"github.com/inference-sim/ccsim/sim/workload"
)

// Scenario describes a whole contact center: its contact types, agent groups
// and routing policy.
type Scenario struct {
	Name    string  `yaml:"name,omitempty" toml:"name,omitempty"`
	Horizon float64 `yaml:"horizon" toml:"horizon"`
	Seed    int64   `yaml:"seed" toml:"seed"`
	// Drain keeps simulating after the horizon, without new arrivals, until
	// every routed contact has left.
	Drain bool `yaml:"drain,omitempty" toml:"drain,omitempty"`

	// QueueCapacity bounds the total number of queued copies; nil is unbounded.
	QueueCapacity *int `yaml:"queue_capacity,omitempty" toml:"queue_capacity,omitempty"`
	// ServiceLevel is the acceptable waiting time used by the service-level metric.
	ServiceLevel float64 `yaml:"service_level,omitempty" toml:"service_level,omitempty"`

	Trunks []TrunkConfig       `yaml:"trunks,omitempty" toml:"trunks,omitempty"`
	Types  []TypeConfig        `yaml:"types" toml:"types"`
	Groups []GroupConfig       `yaml:"groups" toml:"groups"`
	Router router.PolicyConfig `yaml:"router" toml:"router"`

	// NoAutoClear lists queues that keep their contacts when no group can
	// serve them any longer.
	NoAutoClear []int `yaml:"no_auto_clear,omitempty" toml:"no_auto_clear,omitempty"`
}

// TrunkConfig is a shared pool of lines.
type TrunkConfig struct {
	Name  string `yaml:"name" toml:"name"`
	Lines int    `yaml:"lines" toml:"lines"`
}

// TypeConfig describes the arrivals of one contact type.
type TypeConfig struct {
	Name     string                `yaml:"name,omitempty" toml:"name,omitempty"`
	Arrival  workload.ArrivalSpec  `yaml:"arrival" toml:"arrival"`
	Service  workload.DurationSpec `yaml:"service" toml:"service"`
	Patience workload.DurationSpec `yaml:"patience,omitempty" toml:"patience,omitempty"`
	Priority float64               `yaml:"priority,omitempty" toml:"priority,omitempty"`
	Trunk    string                `yaml:"trunk,omitempty" toml:"trunk,omitempty"`
}

// GroupConfig describes one agent group and its staffing plan.
type GroupConfig struct {
	Name     string           `yaml:"name,omitempty" toml:"name,omitempty"`
	Agents   int              `yaml:"agents" toml:"agents"`
	Staffing []StaffingChange `yaml:"staffing,omitempty" toml:"staffing,omitempty"`
}

// StaffingChange sets the number of agents of a group at a given time.
type StaffingChange struct {
	At     float64 `yaml:"at" toml:"at"`
	Agents int     `yaml:"agents" toml:"agents"`
}

// LoadScenario reads a scenario file. The format follows the extension:
// .toml for TOML, anything else for YAML. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := ParseScenario(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes a scenario; ext selects the format as in LoadScenario.
func ParseScenario(data []byte, ext string) (*Scenario, error) {
	var sc Scenario
	if strings.EqualFold(ext, ".toml") {
		md, err := toml.Decode(string(data), &sc)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown field %q", undecoded[0].String())
		}
		return &sc, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks everything that does not need the routing tables.
func (sc *Scenario) Validate() error {
	if math.IsNaN(sc.Horizon) || sc.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %f", sc.Horizon)
	}
	if sc.QueueCapacity != nil && *sc.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must be non-negative, got %d", *sc.QueueCapacity)
	}
	if math.IsNaN(sc.ServiceLevel) || sc.ServiceLevel < 0 {
		return fmt.Errorf("service_level must be non-negative, got %f", sc.ServiceLevel)
	}
	if len(sc.Types) == 0 {
		return fmt.Errorf("at least one contact type is required")
	}
	if len(sc.Groups) == 0 {
		return fmt.Errorf("at least one agent group is required")
	}
	trunks := make(map[string]bool, len(sc.Trunks))
	for i, tr := range sc.Trunks {
		if tr.Name == "" || trunks[tr.Name] {
			return fmt.Errorf("trunks[%d]: name %q is empty or duplicated", i, tr.Name)
		}
		if tr.Lines < 0 {
			return fmt.Errorf("trunks[%d]: lines must be non-negative, got %d", i, tr.Lines)
		}
		trunks[tr.Name] = true
	}
	for k := range sc.Types {
		tc := &sc.Types[k]
		prefix := fmt.Sprintf("types[%d]", k)
		if err := tc.Arrival.Validate(prefix + ".arrival"); err != nil {
			return err
		}
		if err := tc.Service.Validate(prefix+".service", false); err != nil {
			return err
		}
		if err := tc.Patience.Validate(prefix+".patience", true); err != nil {
			return err
		}
		if tc.Trunk != "" && !trunks[tc.Trunk] {
			return fmt.Errorf("%s: unknown trunk %q", prefix, tc.Trunk)
		}
	}
	for i, gc := range sc.Groups {
		if gc.Agents < 0 {
			return fmt.Errorf("groups[%d]: agents must be non-negative, got %d", i, gc.Agents)
		}
		for j, ch := range gc.Staffing {
			if math.IsNaN(ch.At) || ch.At < 0 || ch.Agents < 0 {
				return fmt.Errorf("groups[%d].staffing[%d]: time and agents must be non-negative", i, j)
			}
		}
	}
	if err := sc.Router.Validate(); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	numQueues := router.QueueCount(sc.Router, len(sc.Types), len(sc.Groups))
	for _, q := range sc.NoAutoClear {
		if q < 0 || q >= numQueues {
			return fmt.Errorf("no_auto_clear: queue %d not in [0,%d)", q, numQueues)
		}
	}
	return nil
}

// TypeName returns the configured name of type k, or a generated one.
func (sc *Scenario) TypeName(k int) string {
	if n := sc.Types[k].Name; n != "" {
		return n
	}
	return fmt.Sprintf("type_%d", k)
}

// GroupName returns the configured name of group i, or a generated one.
func (sc *Scenario) GroupName(i int) string {
	if n := sc.Groups[i].Name; n != "" {
		return n
	}
	return fmt.Sprintf("group_%d", i)
}
