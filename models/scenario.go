package models

import (
	"time"
)

// Scenario lifecycle statuses as stored in the scenarios table
const (
	ScenarioStatusActive    = "ACTIVE"
	ScenarioStatusResolved  = "RESOLVED"
	ScenarioStatusExpired   = "EXPIRED"
	ScenarioStatusCancelled = "CANCELLED"
)

// Display fallbacks for scenarios without a price or a holder
const (
	DefaultScenarioPrice  = 100.0
	DefaultHolderUsername = "Anonymous"
)

// StoredScenario is the detector's read-only view of a scenarios row.
// HolderUsername is already flattened from the users join.
type StoredScenario struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Status           string    `json:"status"`
	ContentHash      *string   `json:"content_hash"`
	DuplicateChecked bool      `json:"duplicate_checked"`
	DuplicateOf      *string   `json:"duplicate_of"`
	CurrentPrice     *float64  `json:"current_price"`
	HolderUsername   *string   `json:"holder_username"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsCancelled reports whether the scenario was withdrawn or invalidated
func (s *StoredScenario) IsCancelled() bool {
	return s.Status == ScenarioStatusCancelled
}

// SimilarScenario is a stored scenario annotated with its similarity to a candidate
type SimilarScenario struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	Similarity     int       `json:"similarity"`
	CurrentPrice   float64   `json:"current_price"`
	HolderUsername string    `json:"holder_username"`
}

// NewSimilarScenario copies the display fields of a stored scenario and applies
// the price and holder fallbacks.
func NewSimilarScenario(s StoredScenario, similarity int) SimilarScenario {
	price := DefaultScenarioPrice
	if s.CurrentPrice != nil {
		price = *s.CurrentPrice
	}
	holder := DefaultHolderUsername
	if s.HolderUsername != nil && *s.HolderUsername != "" {
		holder = *s.HolderUsername
	}

	return SimilarScenario{
		ID:             s.ID,
		Title:          s.Title,
		Description:    s.Description,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		Similarity:     similarity,
		CurrentPrice:   price,
		HolderUsername: holder,
	}
}

// DuplicateCheckResult is returned to the scenario creation flow.
// CorpusUnavailable marks a fail-open result where the comparison corpus could
// not be loaded; the verdict is then non-duplicate by policy.
type DuplicateCheckResult struct {
	IsDuplicate       bool              `json:"isDuplicate"`
	ExactMatch        bool              `json:"exactMatch"`
	SimilarScenarios  []SimilarScenario `json:"similarScenarios"`
	ContentHash       string            `json:"contentHash"`
	CorpusUnavailable bool              `json:"corpusUnavailable,omitempty"`
}

// ScenarioUpdate is a partial update; nil fields are left untouched
type ScenarioUpdate struct {
	ContentHash      *string
	DuplicateChecked *bool
	DuplicateOf      *string
	Status           *string
}

// IsEmpty reports whether the update would change nothing
func (u ScenarioUpdate) IsEmpty() bool {
	return u.ContentHash == nil && u.DuplicateChecked == nil && u.DuplicateOf == nil && u.Status == nil
}
