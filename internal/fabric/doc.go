// Package fabric implements the in-process message fabric that connects the
// participants of a run. Every rank owns one unbounded FIFO mailbox; any
// participant may send to any rank without blocking, and only the owner
// receives from its mailbox.
package fabric
