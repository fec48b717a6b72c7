package domain

import (
	"fmt"
	"time"
)

// FetchWindow bounds a single API request. It is usable only when Start is
// strictly before End.
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

func (w FetchWindow) Valid() bool { return w.Start.Before(w.End) }

func (w FetchWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// Coverage is what the store already holds for a symbol. It is recomputed on
// every run and never persisted.
type Coverage struct {
	Latest  time.Time
	HasData bool
}

type Plan struct {
	Symbol Symbol
	Window FetchWindow
	Skip   bool
	Reason string
}
