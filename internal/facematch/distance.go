package facematch

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kozaktomas/vface/internal/database"
)

// EuclideanDistance returns the L2 distance between two feature vectors.
// Vectors of different or zero length are infinitely far apart.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}

// Distances computes the distance from query to every identity of a gallery,
// in gallery order.
func Distances(gallery []database.IdentityRecord, query []float64) []float64 {
	out := make([]float64, len(gallery))
	for i, identity := range gallery {
		out[i] = EuclideanDistance(query, identity.Vector)
	}
	return out
}

// Nearest returns the index and distance of the closest identity. Ties keep
// the earliest identity in gallery order. ok is false when no identity has a
// comparable vector.
func Nearest(gallery []database.IdentityRecord, query []float64) (index int, distance float64, ok bool) {
	index = -1
	distance = math.Inf(1)
	for i, d := range Distances(gallery, query) {
		if d < distance {
			index, distance = i, d
		}
	}
	return index, distance, index >= 0
}
