package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Registry holds the column-level contract of the loaded model: the target
// columns it produces and, when known, the ordered feature columns it was
// fit on. It is built once at startup and read-only afterwards, so it is
// safe to share across requests without locking.
type Registry struct {
	features []string
	count    int
	targets  []string
}

// Load reads the target-column artifact (required) and the feature-column
// artifact (optional). featureCount is what the model itself reports as its
// fitted input width; it backs the degraded mode when the name list artifact
// is absent.
func Load(targetPath, featurePath string, featureCount int) (*Registry, error) {
	targets, err := readColumns(targetPath)
	if err != nil {
		return nil, fmt.Errorf("target columns: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("target columns: %s lists no columns", targetPath)
	}

	r := &Registry{count: featureCount, targets: targets}

	if featurePath != "" {
		features, err := readColumns(featurePath)
		switch {
		case os.IsNotExist(err):
			// Degraded mode: validation falls back to the feature count.
		case err != nil:
			return nil, fmt.Errorf("feature columns: %w", err)
		default:
			r.features = features
		}
	}

	return r, nil
}

func readColumns(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cols []string
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cols, nil
}

// Features returns the ordered expected feature columns, or false when the
// name list artifact was absent.
func (r *Registry) Features() ([]string, bool) {
	if len(r.features) == 0 {
		return nil, false
	}
	return r.features, true
}

// FeatureCount returns the fitted input width, or false when the model did
// not report one.
func (r *Registry) FeatureCount() (int, bool) {
	if len(r.features) > 0 {
		return len(r.features), true
	}
	if r.count <= 0 {
		return 0, false
	}
	return r.count, true
}

// Targets returns the ordered output column names.
func (r *Registry) Targets() []string { return r.targets }
