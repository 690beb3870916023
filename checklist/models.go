package checklist

import "time"

// Phase identifies which handover a checklist documents.
type Phase string

const (
	PhasePickup Phase = "PICKUP"
	PhaseReturn Phase = "RETURN"
)

// Assessment is the structured condition verdict recorded at return. It is
// the sole source of truth for damage detection; condition notes are
// free-text commentary only.
type Assessment string

const (
	AssessmentSame  Assessment = "Same"
	AssessmentMinor Assessment = "Minor"
	AssessmentMajor Assessment = "Major"
)

// Valid reports whether a is one of the recognised verdicts.
func (a Assessment) Valid() bool {
	switch a {
	case AssessmentSame, AssessmentMinor, AssessmentMajor:
		return true
	}
	return false
}

// Checklist is a signed, immutable record of item condition at pickup or
// return. Photos are opaque references into external storage. Once signed_at
// is set the row never changes; corrections require a new administrative
// record.
type Checklist struct {
	ID                  string
	BookingID           string
	Phase               Phase
	Photos              []string
	Serial              *string
	ConditionNotes      *string
	ConditionAssessment *Assessment
	SignedBy            *string
	SignedAt            time.Time
}
