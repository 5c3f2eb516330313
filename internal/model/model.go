// Package model loads the fitted model artifact and runs batch inference
// against it. Callers treat the handle as opaque: one output row per input
// row, output columns matching the registry's targets.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
)

// Predictor is the opaque inference contract. Implementations must be safe
// for concurrent use after construction.
type Predictor interface {
	// Predict maps each input row to one output row. Input rows must have
	// the width the model was fit on.
	Predict(rows [][]float64) ([][]float64, error)

	// FeatureCount reports the fitted input width, or 0 if unknown.
	FeatureCount() int
}

// artifact is the persisted JSON form of a fitted linear model.
type artifact struct {
	ModelType  string      `json:"model_type"`
	NFeatures  int         `json:"n_features"`
	Weights    [][]float64 `json:"weights"`    // [target][feature]
	Intercepts []float64   `json:"intercepts"` // [target]
}

// Linear is a fitted multi-output linear model.
type Linear struct {
	weights    [][]float64
	intercepts []float64
	nFeatures  int
}

// Load reads a model artifact from disk.
func Load(path string) (*Linear, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if a.ModelType != "" && a.ModelType != "linear" {
		return nil, fmt.Errorf("%s: unsupported model_type %q", path, a.ModelType)
	}
	if len(a.Weights) == 0 {
		return nil, fmt.Errorf("%s: no weights", path)
	}
	if len(a.Intercepts) != len(a.Weights) {
		return nil, fmt.Errorf("%s: %d intercepts for %d targets", path, len(a.Intercepts), len(a.Weights))
	}

	nf := a.NFeatures
	for t, w := range a.Weights {
		if nf == 0 {
			nf = len(w)
		}
		if len(w) != nf {
			return nil, fmt.Errorf("%s: target %d has %d weights, expected %d", path, t, len(w), nf)
		}
	}

	return &Linear{weights: a.Weights, intercepts: a.Intercepts, nFeatures: nf}, nil
}

// FeatureCount reports the fitted input width.
func (m *Linear) FeatureCount() int { return m.nFeatures }

// Predict computes one output row per input row, splitting rows across
// CPU cores for large batches.
func (m *Linear) Predict(rows [][]float64) ([][]float64, error) {
	for i, row := range rows {
		if len(row) != m.nFeatures {
			return nil, fmt.Errorf("row %d has %d features, model was fit on %d", i+1, len(row), m.nFeatures)
		}
	}

	out := make([][]float64, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	workers := runtime.GOMAXPROCS(0)
	per := (len(rows) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		s := w * per
		e := min(s+per, len(rows))
		if s >= e {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				row := rows[i]
				y := make([]float64, len(m.weights))
				for t, w := range m.weights {
					sum := m.intercepts[t]
					for f, wf := range w {
						sum += wf * row[f]
					}
					y[t] = sum
				}
				out[i] = y
			}
		}(s, e)
	}
	wg.Wait()
	return out, nil
}
