package model

// Outcome labels the result of processing a single record.
type Outcome string

const (
	OutcomeExtracted   Outcome = "extracted"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeNotProduct  Outcome = "not_product"
	OutcomeIncomplete  Outcome = "incomplete"
)

// RecordOutcome is what gets stored for every processed record.
type RecordOutcome struct {
	RunID   string
	Record  Record
	Outcome Outcome
	Detail  string
}
