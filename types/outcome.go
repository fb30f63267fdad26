package types

// Outcome is the result of a reconciliation: whether anything changed
// remotely, and an ordered log of what was done.
//
// Outcome is a value. Every method returns a new Outcome and never shares
// its log with the receiver, so sub-results can be composed freely.
type Outcome struct {
	changed bool
	log     []string
}

// Unchanged returns an empty outcome
func Unchanged() Outcome {
	return Outcome{}
}

// Changed returns a changed outcome carrying the given log entries
func Changed(entries ...string) Outcome {
	return Outcome{changed: true, log: append([]string(nil), entries...)}
}

// IsChanged reports whether any remote mutation happened
func (o Outcome) IsChanged() bool {
	return o.changed
}

// Log returns a copy of the ordered change descriptions
func (o Outcome) Log() []string {
	return append([]string(nil), o.log...)
}

// Len returns the number of log entries
func (o Outcome) Len() int {
	return len(o.log)
}

// Record returns o plus one change entry
func (o Outcome) Record(entry string) Outcome {
	return o.Merge(Changed(entry))
}

// Merge concatenates other after o
func (o Outcome) Merge(other Outcome) Outcome {
	log := make([]string, 0, len(o.log)+len(other.log))
	log = append(log, o.log...)
	log = append(log, other.log...)
	if len(log) == 0 {
		log = nil
	}
	return Outcome{changed: o.changed || other.changed, log: log}
}
