package types

import "fmt"

// MessageKind discriminates the payload carried by a Message.
type MessageKind string

const (
	// MessageKindWork carries a work item from the coordinator to a worker.
	MessageKindWork MessageKind = "work"
	// MessageKindTerminate is the termination token sent to a worker.
	MessageKindTerminate MessageKind = "terminate"
	// MessageKindResult carries a computed result from a worker to the coordinator.
	MessageKindResult MessageKind = "result"
)

// Message is the envelope exchanged between participants.
// Exactly one payload shape is meaningful for a given Kind: Item for work,
// Result for result, none for terminate.
type Message[T, U any] struct {
	Kind   MessageKind
	Item   T
	Result Result[T, U]
}

// WorkMessage creates a work instruction for item.
func WorkMessage[T, U any](item T) Message[T, U] {
	return Message[T, U]{Kind: MessageKindWork, Item: item}
}

// TerminationMessage creates the termination token.
func TerminationMessage[T, U any]() Message[T, U] {
	return Message[T, U]{Kind: MessageKindTerminate}
}

// ResultMessage wraps a worker result for delivery to the coordinator.
func ResultMessage[T, U any](result Result[T, U]) Message[T, U] {
	return Message[T, U]{Kind: MessageKindResult, Result: result}
}

// IsTermination reports whether m is the termination token.
func (m Message[T, U]) IsTermination() bool {
	return m.Kind == MessageKindTerminate
}

// String implements fmt.Stringer.
func (m Message[T, U]) String() string {
	switch m.Kind {
	case MessageKindWork:
		return fmt.Sprintf("work(%v)", m.Item)
	case MessageKindTerminate:
		return "terminate"
	case MessageKindResult:
		return fmt.Sprintf("result(rank=%d, item=%v, metric=%v)", m.Result.Producer, m.Result.Item, m.Result.Metric)
	default:
		return fmt.Sprintf("unknown(%s)", string(m.Kind))
	}
}
