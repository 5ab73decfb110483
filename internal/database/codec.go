package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// EncodeVector serializes a feature vector as a JSON array for blob columns.
func EncodeVector(v []float64) ([]byte, error) {
	if len(v) == 0 {
		return nil, errors.New("empty vector")
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("vector component %d is not finite", i)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal vector: %w", err)
	}
	return data, nil
}

// DecodeVector parses a blob written by EncodeVector. Empty input yields a
// nil vector so callers can skip identities without an encoding.
func DecodeVector(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal vector: %w", err)
	}
	return v, nil
}

// Float32s converts a vector for pgvector columns.
func Float32s(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Float64s converts a pgvector slice back to the matching precision.
func Float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
