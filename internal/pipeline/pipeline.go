// Package pipeline turns an untrusted tabular upload into a stored
// prediction table. One request is one atomic attempt: it either runs all
// stages to completion or stops at the first failing stage with a typed
// error, with nothing persisted.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcules/predict-server/internal/model"
	"github.com/mcules/predict-server/internal/results"
	"github.com/mcules/predict-server/internal/schema"
	"github.com/mcules/predict-server/internal/table"
)

// idColumn is the reserved identifier column. It is split off before
// alignment and re-attached to the output, never fed to the model.
const idColumn = "ID"

// previewRows bounds the result preview in the summary.
const previewRows = 10

// Upload is one raw client file, not yet validated.
type Upload struct {
	Filename string
	Data     []byte
}

// Request carries one inference attempt through the pipeline.
type Request struct {
	Upload Upload

	// Authorized is the verdict of the auth collaborator. False aborts
	// before any I/O.
	Authorized bool

	// Username keys the result pointer.
	Username string
}

// Summary describes a completed prediction.
type Summary struct {
	RowCount   int
	Columns    []string
	Preview    [][]string
	MoreRows   bool   // true when the preview is truncated
	ResultName string // filename usable with the download endpoint
}

// Runner wires the pipeline's collaborators. Registry and Predictor are
// nil when the corresponding artifacts failed to load at startup; requests
// then fail with KindModelNotLoaded instead of crashing the process.
type Runner struct {
	Registry  *schema.Registry
	Predictor model.Predictor
	Files     *results.FileStore
	Pointers  results.Pointers

	// now is swappable for tests.
	now func() time.Time
}

// NewRunner builds a Runner around the given collaborators.
func NewRunner(reg *schema.Registry, p model.Predictor, files *results.FileStore, ptrs results.Pointers) *Runner {
	return &Runner{Registry: reg, Predictor: p, Files: files, Pointers: ptrs, now: time.Now}
}

// Run executes one request to a terminal state.
func (rn *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	if !req.Authorized {
		return Summary{}, &Error{Kind: KindAuthorizationRequired}
	}
	if strings.ToLower(filepath.Ext(req.Upload.Filename)) != ".csv" {
		return Summary{}, &Error{Kind: KindUnsupportedFormat}
	}
	if rn.Predictor == nil || rn.Registry == nil {
		return Summary{}, &Error{Kind: KindModelNotLoaded}
	}

	t, err := table.Parse(bytes.NewReader(req.Upload.Data))
	if err != nil {
		return Summary{}, failf(KindParseFailed, "%s: %w", req.Upload.Filename, err)
	}

	// Structural split, never fails: absent ID just means no identifiers.
	ids, hasIDs := t.TakeColumn(idColumn)

	if err := rn.align(&t); err != nil {
		return Summary{}, err
	}

	// Non-numeric cells surface here, after alignment: the upload had the
	// right columns but values the model cannot consume.
	features, err := t.Matrix()
	if err != nil {
		return Summary{}, failf(KindInferenceFailed, "%w", err)
	}

	preds, err := rn.Predictor.Predict(features)
	if err != nil {
		return Summary{}, failf(KindInferenceFailed, "%w", err)
	}
	if len(preds) != t.RowCount() {
		return Summary{}, failf(KindInferenceFailed, "model returned %d rows for %d inputs", len(preds), t.RowCount())
	}

	out := table.FromMatrix(rn.Registry.Targets(), preds)
	if hasIDs {
		if err := out.PrependColumn(idColumn, ids); err != nil {
			return Summary{}, failf(KindInferenceFailed, "%w", err)
		}
	}

	name := fmt.Sprintf("predictions_%s_%s.csv", rn.now().Format("20060102_150405"), uuid.NewString()[:8])
	if err := rn.Files.Save(name, out); err != nil {
		return Summary{}, failf(KindPersistFailed, "%w", err)
	}
	if err := rn.Pointers.SetResult(ctx, req.Username, name); err != nil {
		return Summary{}, failf(KindPersistFailed, "%w", err)
	}

	return Summary{
		RowCount:   out.RowCount(),
		Columns:    out.Columns,
		Preview:    out.Head(previewRows),
		MoreRows:   out.RowCount() > previewRows,
		ResultName: name,
	}, nil
}

// align reduces and reorders the working table to the model's expected
// input. With named features, missing columns are fatal and extras are
// dropped; column order always ends up exactly as fit. With only a count
// (degraded mode) the upload's column order is trusted as-is after the
// width check; order cannot be verified without names, a known precision
// gap carried over from the fitted artifact being incomplete. With no
// schema at all the table passes through and any mismatch surfaces from
// the model.
func (rn *Runner) align(t *table.Table) *Error {
	if want, ok := rn.Registry.Features(); ok {
		if missing := t.Missing(want); len(missing) > 0 {
			return &Error{Kind: KindMissingFeatures, Missing: missing}
		}
		if err := t.Select(want); err != nil {
			return failf(KindInferenceFailed, "%w", err)
		}
		return nil
	}

	if want, ok := rn.Registry.FeatureCount(); ok {
		if got := len(t.Columns); got != want {
			return &Error{Kind: KindFeatureCountMismatch, Expected: want, Actual: got}
		}
	}
	return nil
}
