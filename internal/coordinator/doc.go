// Package coordinator implements the rank 0 loop of a run.
//
// The coordinator hands one item to every worker, then greedily gives the
// next queued item to whichever worker returns a result. Once the queue is
// empty it drains the outstanding results, sending each producer its
// termination token, and passes the collected results to a sink.
package coordinator
