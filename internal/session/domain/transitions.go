package domain

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusRejected:  {StatusSubmitted, StatusDraft},
	StatusSubmitted: {StatusApproved, StatusDraft, StatusCancelled, StatusNoShow},
	StatusApproved:  {StatusDraft, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether a session in status from may move to status to.
// Rejection moves a session back to draft so it can be resubmitted.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status that may move to the given one.
func SourcesFor(to Status) []Status {
	var out []Status
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// IsTerminal reports whether no further edits are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusNoShow
}

// IsBillable reports whether a session in this status may appear on an invoice.
func (s Status) IsBillable() bool {
	return s == StatusSubmitted || s == StatusApproved
}
