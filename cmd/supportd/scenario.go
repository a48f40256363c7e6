package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"supportstake/config"
)

// Scenario is a scripted sequence of engine operations.
type Scenario struct {
	// Balances seeds the principal ledger, keyed by hex address, in tokens.
	Balances map[string]string `yaml:"balances"`
	Steps    []Step            `yaml:"steps"`
}

// Step is one operation. At is either an RFC3339 timestamp or an offset from
// the reward window start such as "+36h" or "+50d".
type Step struct {
	At          string `yaml:"at"`
	Op          string `yaml:"op"`
	Owner       string `yaml:"owner,omitempty"`
	Pool        uint64 `yaml:"pool,omitempty"`
	Amount      string `yaml:"amount,omitempty"`
	Vault       string `yaml:"vault,omitempty"`
	ExpectError string `yaml:"expect_error,omitempty"`
}

var errUnknownOp = errors.New("unknown op")

var knownOps = map[string]struct{}{
	"deposit":              {},
	"claim":                {},
	"withdraw_claimed":     {},
	"redeem":               {},
	"withdraw_beneficiary": {},
	"disable":              {},
	"recover":              {},
	"freeze":               {},
	"migrate":              {},
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario, rejecting unknown fields and ops.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	for i, step := range sc.Steps {
		if _, ok := knownOps[step.Op]; !ok {
			return nil, fmt.Errorf("step %d: %w %q", i, errUnknownOp, step.Op)
		}
		if strings.TrimSpace(step.At) == "" {
			return nil, fmt.Errorf("step %d: at is required", i)
		}
	}
	return &sc, nil
}

// resolveTime interprets at relative to start.
func resolveTime(at string, start time.Time) (time.Time, error) {
	at = strings.TrimSpace(at)
	if !strings.HasPrefix(at, "+") {
		return time.Parse(time.RFC3339, at)
	}
	offset := at[1:]
	if days, ok := strings.CutSuffix(offset, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("offset %q: %w", at, err)
		}
		return start.Add(time.Duration(n * float64(24*time.Hour))), nil
	}
	d, err := time.ParseDuration(offset)
	if err != nil {
		return time.Time{}, fmt.Errorf("offset %q: %w", at, err)
	}
	return start.Add(d), nil
}

func parseAmount(step Step) (*big.Int, error) {
	amount, err := config.ParseUnits(step.Amount)
	if err != nil {
		return nil, fmt.Errorf("%s amount: %w", step.Op, err)
	}
	return amount, nil
}
