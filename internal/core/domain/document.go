package domain

import (
	"fmt"
	"time"
)

// Stage is one state of a document's processing state machine.
type Stage string

// Pipeline stages.
const (
	StageUploaded        Stage = "uploaded"
	StageQueued          Stage = "queued"
	StageExtracting      Stage = "extracting"
	StageExtractingRetry Stage = "extracting-retry"
	StageClassified      Stage = "classified"
	StageRegistered      Stage = "registered"
	StageFailedDegraded  Stage = "failed-degraded"
	StageFailedPermanent Stage = "failed-permanent"
	StagePausedAuth      Stage = "paused-auth"
)

// transitions lists the allowed successors of each stage.
// classified/registered/failed-degraded/paused-auth -> queued is reprocessing.
var transitions = map[Stage][]Stage{
	StageUploaded:        {StageQueued, StageFailedPermanent},
	StageQueued:          {StageExtracting, StageFailedPermanent},
	StageExtracting:      {StageClassified, StageExtractingRetry, StagePausedAuth, StageFailedPermanent},
	StageExtractingRetry: {StageExtracting, StageFailedDegraded, StageFailedPermanent},
	StageClassified:      {StageRegistered, StageQueued, StageFailedPermanent},
	StageRegistered:      {StageQueued},
	StageFailedDegraded:  {StageQueued, StageFailedPermanent},
	StagePausedAuth:      {StageQueued, StageFailedPermanent},
	StageFailedPermanent: nil,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the state machine allows s -> to.
func (s Stage) CanTransition(to Stage) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic processing follows s.
func (s Stage) Terminal() bool {
	return s == StageRegistered || s == StageFailedPermanent
}

// Active reports whether a document in s is owned by a processing run.
func (s Stage) Active() bool {
	return s == StageQueued || s == StageExtracting || s == StageExtractingRetry
}

// Reprocessable reports whether an operator may send s back to queued.
func (s Stage) Reprocessable() bool {
	switch s {
	case StageClassified, StageRegistered, StageFailedDegraded, StagePausedAuth:
		return true
	default:
		return false
	}
}

// ExtractionPath records which extractor produced a document's fields.
type ExtractionPath string

// Extraction paths.
const (
	ExtractionPrimary ExtractionPath = "primary"
	ExtractionLocal   ExtractionPath = "local"
)

// Document categories assigned by classification.
const (
	CategoryLease          = "lease"
	CategoryEvictionNotice = "eviction_notice"
	CategoryCourtFiling    = "court_filing"
	CategoryCorrespondence = "correspondence"
	CategoryInvoice        = "invoice"
	CategoryOther          = "other"
)

// Classification is the category assigned to a document.
type Classification struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals,omitempty"`
}

// DocumentRecord tracks an uploaded artifact through the pipeline.
type DocumentRecord struct {
	ID       string
	OwnerID  string
	Name     string
	MIMEType string
	Stage    Stage

	// StorageRef locates the raw artifact in the artifact store.
	StorageRef string

	// ProviderFileID is the artifact's id in the owner's cloud storage, if any.
	// Its presence enables the primary extraction path.
	ProviderFileID string

	// Fields holds extracted semantic fields. Kept on degraded failure.
	Fields map[string]any

	Classification *Classification
	RetryCount     int
	ExtractionPath ExtractionPath

	// PausedReason explains a paused-auth stage.
	PausedReason string

	// FailureReason explains a failed-* stage.
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition moves the record to stage to, enforcing the state machine.
func (r *DocumentRecord) Transition(to Stage) error {
	if !r.Stage.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Stage, to)
	}
	r.Stage = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a copy with independent maps.
func (r DocumentRecord) Clone() DocumentRecord {
	c := r
	if r.Fields != nil {
		c.Fields = copyFields(r.Fields)
	}
	if r.Classification != nil {
		cl := *r.Classification
		cl.Signals = append([]string(nil), r.Classification.Signals...)
		c.Classification = &cl
	}
	return c
}
