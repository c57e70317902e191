// Package registry looks up patient identity in the clinic's patient
// registry and ranks candidate matches for an extracted DICOM identity.
// The registry is read-only from the pipeline's point of view.
package registry

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is one registry record.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	MRN       string    `json:"mrn"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	BirthDate string    `json:"birth_date"` // ISO date, e.g. 1980-01-01
	Sex       string    `json:"sex"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the registry name in DICOM LAST^FIRST form.
func (p Patient) DisplayName() string {
	return strings.ToUpper(p.LastName) + "^" + strings.ToUpper(p.FirstName)
}

// Tier is the confidence classification of a candidate match.
type Tier int

const (
	// TierExact means MRN, name and birth date all agree.
	TierExact Tier = iota
	// TierPartial means MRN alone, or name and birth date together, agree.
	TierPartial
	// TierManual means the operator explicitly chose the record.
	TierManual
)

// String returns the string representation of a Tier.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPartial:
		return "partial"
	case TierManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Candidate is a registry patient plus its match classification. Confidence
// is in [0,1] and monotonic with tier.
type Candidate struct {
	Patient    Patient
	Tier       Tier
	Confidence float64
}

// Query carries the (possibly partial) search inputs. Empty fields are
// omitted from the lookup.
type Query struct {
	MRN       string
	Name      string
	BirthDate string
}
