package registry

import (
	"context"
	"sort"
	"strings"

	"github.com/clinicore/imagingest/internal/util"
)

// Confidence scores per match class. Monotonic with tier: every exact score
// exceeds every partial score, which exceeds the manual score.
const (
	ConfidenceExact        = 1.0
	ConfidenceMRNOnly      = 0.75
	ConfidenceDemographics = 0.6
	ConfidenceManual       = 0.25
)

// Matcher classifies registry records against a DICOM-side patient identity.
type Matcher struct {
	registry Searcher
}

// NewMatcher builds a Matcher over a registry lookup.
func NewMatcher(registry Searcher) *Matcher {
	return &Matcher{registry: registry}
}

// Match searches the registry for the extracted identity and returns ranked
// candidates: exact tier first, then partial by descending confidence, ties
// broken by most-recently-updated record. The result is deterministic for
// fixed registry contents. An empty result means the operator must search
// manually. The matcher never mutates registry records.
func (m *Matcher) Match(ctx context.Context, mrn, name, birthDate string) ([]Candidate, error) {
	patients, err := m.registry.SearchPatients(ctx, Query{MRN: mrn, Name: name, BirthDate: birthDate})
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, p := range patients {
		c, ok := classify(p, mrn, name, birthDate)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.Patient.UpdatedAt.Equal(b.Patient.UpdatedAt) {
			return a.Patient.UpdatedAt.After(b.Patient.UpdatedAt)
		}
		return a.Patient.MRN < b.Patient.MRN
	})

	return candidates, nil
}

// ManualCandidate wraps an operator-chosen registry record. No automated
// agreement is implied.
func ManualCandidate(p Patient) Candidate {
	return Candidate{Patient: p, Tier: TierManual, Confidence: ConfidenceManual}
}

// classify derives the tier for one registry record, or reports that the
// record does not qualify as an automated candidate.
func classify(p Patient, mrn, name, birthDate string) (Candidate, bool) {
	mrnAgrees := mrn != "" && p.MRN == mrn
	nameAgrees := util.SamePerson(p.DisplayName(), name)
	birthAgrees := sameDate(p.BirthDate, birthDate)

	switch {
	case mrnAgrees && nameAgrees && birthAgrees:
		return Candidate{Patient: p, Tier: TierExact, Confidence: ConfidenceExact}, true
	case mrnAgrees:
		return Candidate{Patient: p, Tier: TierPartial, Confidence: ConfidenceMRNOnly}, true
	case nameAgrees && birthAgrees:
		return Candidate{Patient: p, Tier: TierPartial, Confidence: ConfidenceDemographics}, true
	default:
		return Candidate{}, false
	}
}

// sameDate compares dates accepting both the DICOM DA form (19800101) and
// the registry's ISO form (1980-01-01). Empty dates never agree.
func sameDate(a, b string) bool {
	na, nb := canonicalDate(a), canonicalDate(b)
	return na != "" && na == nb
}

func canonicalDate(s string) string {
	digits := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if len(digits) != 8 {
		return ""
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return digits
}
