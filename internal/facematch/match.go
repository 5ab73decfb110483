// Package facematch implements nearest-neighbour face matching against a
// gallery of registered identities.
package facematch

import (
	"errors"

	"github.com/kozaktomas/vface/internal/database"
)

// ErrNoMatch is returned when no query face was accepted.
var ErrNoMatch = errors.New("face recognition is failed, no matched faces")

// Candidate is an accepted match for one detected face.
type Candidate struct {
	IdentityID string  `json:"id"`
	Confidence float64 `json:"conf"`
	Metadata   string  `json:"info"`
}

// MatchOne matches a single query vector. threshold is the required
// confidence as a fraction in (0, 1).
func MatchOne(gallery []database.IdentityRecord, query []float64, threshold float64) (Candidate, bool) {
	best, distance, ok := Nearest(gallery, query)
	if !ok || distance > MatchCutoff {
		return Candidate{}, false
	}

	confidence := Confidence(distance)
	if confidence < threshold*100 {
		return Candidate{}, false
	}

	return Candidate{
		IdentityID: gallery[best].IdentityID,
		Confidence: confidence,
		Metadata:   gallery[best].Metadata,
	}, true
}

// Match matches every detected face of an image independently and returns
// the accepted candidates in query order. Returns ErrNoMatch when none was
// accepted.
func Match(gallery []database.IdentityRecord, queries [][]float64, threshold float64) ([]Candidate, error) {
	var result []Candidate
	for _, query := range queries {
		if c, ok := MatchOne(gallery, query, threshold); ok {
			result = append(result, c)
		}
	}
	if len(result) == 0 {
		return nil, ErrNoMatch
	}
	return result, nil
}
