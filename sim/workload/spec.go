package workload

import (
	"fmt"
	"math"
)

// ArrivalSpec parameterizes the arrival process of one contact type.
type ArrivalSpec struct {
	Process string   `yaml:"process" toml:"process"`
	Rate    float64  `yaml:"rate" toml:"rate"` // contacts per time unit
	CV      *float64 `yaml:"cv,omitempty" toml:"cv,omitempty"`
}

// DurationSpec parameterizes a service or patience time distribution.
// The zero value means "none": an infinite patience.
type DurationSpec struct {
	Type string   `yaml:"type,omitempty" toml:"type,omitempty"`
	Mean float64  `yaml:"mean,omitempty" toml:"mean,omitempty"`
	CV   *float64 `yaml:"cv,omitempty" toml:"cv,omitempty"`
}

// IsNone reports whether the spec describes no distribution at all.
func (d DurationSpec) IsNone() bool { return d.Type == "" }

// Valid value registries.
var (
	validArrivalProcesses = map[string]bool{
		"poisson": true, "gamma": true, "weibull": true, "constant": true,
	}
	validDurationTypes = map[string]bool{
		"exponential": true, "constant": true, "gamma": true,
	}
)

// IsValidArrivalProcess reports whether name is a known arrival process.
func IsValidArrivalProcess(name string) bool { return validArrivalProcesses[name] }

// Validate checks the arrival spec. prefix names the spec in errors.
func (a *ArrivalSpec) Validate(prefix string) error {
	if !validArrivalProcesses[a.Process] {
		return fmt.Errorf("%s: unknown arrival process %q; valid: poisson, gamma, weibull, constant", prefix, a.Process)
	}
	if err := validateFinitePositive(prefix+".rate", a.Rate); err != nil {
		return err
	}
	if a.CV != nil {
		if err := validateFinitePositive(prefix+".cv", *a.CV); err != nil {
			return err
		}
		if a.Process == "weibull" && (*a.CV < 0.01 || *a.CV > 10.4) {
			return fmt.Errorf("%s: weibull CV must be in [0.01, 10.4], got %f", prefix, *a.CV)
		}
	}
	return nil
}

// Validate checks the duration spec. When allowNone is false an empty spec
// is rejected.
func (d *DurationSpec) Validate(prefix string, allowNone bool) error {
	if d.IsNone() {
		if allowNone {
			return nil
		}
		return fmt.Errorf("%s: distribution type is required", prefix)
	}
	if !validDurationTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: exponential, constant, gamma", prefix, d.Type)
	}
	if math.IsNaN(d.Mean) || math.IsInf(d.Mean, 0) || d.Mean < 0 {
		return fmt.Errorf("%s.mean must be a finite non-negative number, got %f", prefix, d.Mean)
	}
	if d.Type != "constant" && d.Mean == 0 {
		return fmt.Errorf("%s.mean must be positive for %s, got 0", prefix, d.Type)
	}
	if d.CV != nil {
		if err := validateFinitePositive(prefix+".cv", *d.CV); err != nil {
			return err
		}
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
