// Package workload contains the per-item computations that workers run.
// A workload function must be pure, total and deterministic.
package workload
