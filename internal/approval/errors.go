package approval

import "fmt"

// InvalidStateError reports a transition attempted from a state that does not
// permit it.
type InvalidStateError struct {
	From   Status
	Action string
	Reason string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s conditional approval from %s: %s", e.Action, e.From, e.Reason)
}

// AlreadyDecidedError reports a decision on a request that is no longer pending.
type AlreadyDecidedError struct {
	RequestID string
	Status    Status
}

func (e AlreadyDecidedError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("conditional approval already decided (%s)", e.Status)
	}
	return fmt.Sprintf("conditional approval %s already decided (%s)", e.RequestID, e.Status)
}
