package revision

import "github.com/cuemby/ecsdeploy/pkg/types"

// Ledger remembers the task definition each service ran before this run
// replaced it. Only the first recording per service is kept, so a retried
// revision never overwrites the true pre-run definition.
type Ledger struct {
	previous map[types.ServiceType]string
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{previous: make(map[types.ServiceType]string)}
}

// Record stores arn as the prior definition of st unless one is already recorded.
// It reports whether the entry was written.
func (l *Ledger) Record(st types.ServiceType, arn string) bool {
	if _, ok := l.previous[st]; ok {
		return false
	}
	l.previous[st] = arn
	return true
}

// Previous returns the recorded prior definition of st
func (l *Ledger) Previous(st types.ServiceType) (string, bool) {
	arn, ok := l.previous[st]
	return arn, ok
}

// Len returns the number of recorded services
func (l *Ledger) Len() int {
	return len(l.previous)
}
