package domain

type OutcomeStatus string

const (
	OutcomeFetched OutcomeStatus = "fetched"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeNoData  OutcomeStatus = "no_data"
	OutcomeFailed  OutcomeStatus = "failed"
)
