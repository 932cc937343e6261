// Command mpisim runs a coordinator/worker simulation of message-passing
// parallelism: rank 0 hands out integers, ranks 1..N-1 compute their Collatz
// sequence lengths, and the results are written to a CSV file.
package main

func main() {
	Execute()
}
