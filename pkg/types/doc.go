// Package types defines the core data structures shared by the simulator.
//
// This package contains the fundamental protocol types:
//   - Participant ranks
//   - Messages exchanged between the coordinator and workers
//   - Results and the rows handed to result sinks
package types
