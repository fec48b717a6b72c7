package domain

import "time"

type SymbolOutcome struct {
	Symbol  Symbol
	Status  OutcomeStatus
	Window  FetchWindow
	Written int64
	Reason  string
}

type RunReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []SymbolOutcome
}

// Count returns how many outcomes have the given status.
func (r RunReport) Count(st OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

type SymbolSummary struct {
	Symbol Symbol
	Rows   int64
	First  time.Time
	Last   time.Time
}
