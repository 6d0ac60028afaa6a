// Package combinator implements the all_of/any_of awaiters: lightweight
// objects that satisfy task.Awaitable themselves by routing each child's
// single-shot completion into an aggregate outcome, without ever being a
// suspendable Task in their own right.
package combinator

func outcomeLabel(cancelled bool) string {
	if cancelled {
		return "cancelled"
	}
	return "finished"
}
