package application

import (
	"fmt"
	"time"

	"cryptoquotes-service/internal/domain"
)

// Planner decides which window still has to be fetched for a symbol.
// Start is the fixed beginning of history, End the global boundary of the run.
type Planner struct {
	Start time.Time
	End   time.Time
}

func (p Planner) Plan(symbol domain.Symbol, cov domain.Coverage) domain.Plan {
	start := p.Start
	if cov.HasData {
		// the latest stored day is already complete
		start = cov.Latest.UTC().AddDate(0, 0, 1)
	}
	w := domain.FetchWindow{Start: start, End: p.End}
	if !w.Valid() {
		return domain.Plan{
			Symbol: symbol,
			Window: w,
			Skip:   true,
			Reason: fmt.Sprintf("start %s not before end %s",
				start.UTC().Format(time.RFC3339), p.End.UTC().Format(time.RFC3339)),
		}
	}
	return domain.Plan{Symbol: symbol, Window: w}
}
