package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSerializeRoundTrip checks that Serialize followed by ParseConfig
// preserves the simulation section.
func TestSerializeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("simulation section survives YAML round trip", prop.ForAll(
		func(processes, count int, lo, width, seed uint64, delayMs int64, console bool) bool {
			cfg := DefaultConfig()
			cfg.Simulation = SimulationConfig{
				Processes:  processes,
				InputCount: count,
				InputMin:   lo,
				InputMax:   lo + width,
				Seed:       seed,
				MaxDelay:   time.Duration(delayMs) * time.Millisecond,
			}
			cfg.Output.Console = console

			data, err := cfg.Serialize()
			if err != nil {
				return false
			}
			parsed, err := ParseConfig(data)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(cfg.Simulation, parsed.Simulation) &&
				parsed.Output.Console == console
		},
		gen.IntRange(2, 1024),
		gen.IntRange(0, 100000),
		gen.UInt64Range(1, 1<<40),
		gen.UInt64Range(0, 1<<20),
		gen.UInt64(),
		gen.Int64Range(0, 60000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
