// Package api exposes the programmatic surface: multipart predict and
// result retrieval as JSON/CSV, authenticated by Bearer API key.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/mcules/predict-server/internal/activity"
	"github.com/mcules/predict-server/internal/auth"
	"github.com/mcules/predict-server/internal/metrics"
	"github.com/mcules/predict-server/internal/pipeline"
	"github.com/mcules/predict-server/internal/results"
)

const maxUploadBytes = 64 << 20

type Handler struct {
	Runner   *pipeline.Runner
	Files    *results.FileStore
	Pointers results.Pointers
	Activity *activity.Log
	Latency  *metrics.LatencyTracker
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type predictBody struct {
	Rows       int        `json:"rows"`
	Columns    []string   `json:"columns"`
	Preview    [][]string `json:"preview"`
	MoreRows   bool       `json:"more_rows"`
	ResultName string     `json:"result"`
}

// HandlePredict runs one upload through the pipeline.
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	u, authorized := auth.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "missing file field", Kind: pipeline.KindParseFailed.String()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: pipeline.KindParseFailed.String()})
		return
	}

	summary, err := h.Runner.Run(r.Context(), pipeline.Request{
		Upload:     pipeline.Upload{Filename: header.Filename, Data: data},
		Authorized: authorized,
		Username:   u.Username,
	})
	if err != nil {
		h.Latency.ObserveError("api_predict", time.Since(start))
		kind := pipeline.KindOf(err)
		h.Activity.Add(activity.Event{
			At:       time.Now(),
			Type:     activity.EventPredictionFailed,
			Username: u.Username,
			Note:     kind.String(),
		})
		writeError(w, statusFor(kind), errorBody{Error: err.Error(), Kind: kind.String()})
		return
	}

	h.Latency.ObserveOK("api_predict", time.Since(start))
	h.Activity.Add(activity.Event{
		At:       time.Now(),
		Type:     activity.EventPrediction,
		Username: u.Username,
		Rows:     summary.RowCount,
		Note:     summary.ResultName,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(predictBody{
		Rows:       summary.RowCount,
		Columns:    summary.Columns,
		Preview:    summary.Preview,
		MoreRows:   summary.MoreRows,
		ResultName: summary.ResultName,
	})
}

// HandleResult streams the caller's most recent prediction table.
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	u, _ := auth.UserFromContext(r.Context())

	name, rc, err := results.Resolve(r.Context(), h.Pointers, h.Files, u.Username)
	switch {
	case errors.Is(err, results.ErrNeverPredicted):
		writeError(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "never_predicted"})
		return
	case errors.Is(err, results.ErrStorageMissing):
		writeError(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "storage_missing"})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Kind: "internal"})
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("api result %s: %v", name, err)
	}
}

func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindAuthorizationRequired:
		return http.StatusUnauthorized
	case pipeline.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case pipeline.KindParseFailed:
		return http.StatusBadRequest
	case pipeline.KindMissingFeatures, pipeline.KindFeatureCountMismatch, pipeline.KindInferenceFailed:
		return http.StatusUnprocessableEntity
	case pipeline.KindModelNotLoaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
