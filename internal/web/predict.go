package web

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcules/predict-server/internal/activity"
	"github.com/mcules/predict-server/internal/auth"
	"github.com/mcules/predict-server/internal/pipeline"
	"github.com/mcules/predict-server/internal/results"
)

// maxUploadBytes bounds one upload in memory.
const maxUploadBytes = 64 << 20

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, "predict.html", h.newViewModel(r, "Predict"))
		return
	}

	start := time.Now()
	vm := h.newViewModel(r, "Predict")
	u, authorized := auth.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		vm.Error = "No file uploaded."
		h.render(w, "predict.html", vm)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		vm.Error = "Could not read upload: " + err.Error()
		h.render(w, "predict.html", vm)
		return
	}

	if authorized {
		h.saveUpload(header.Filename, data)
	}

	summary, err := h.Runner.Run(r.Context(), pipeline.Request{
		Upload:     pipeline.Upload{Filename: header.Filename, Data: data},
		Authorized: authorized,
		Username:   u.Username,
	})
	if err != nil {
		h.Latency.ObserveError("predict", time.Since(start))
		h.Activity.Add(activity.Event{
			At:       time.Now(),
			Type:     activity.EventPredictionFailed,
			Username: u.Username,
			Note:     pipeline.KindOf(err).String(),
		})
		vm.Error = err.Error()
		h.render(w, "predict.html", vm)
		return
	}

	h.Latency.ObserveOK("predict", time.Since(start))
	h.Activity.Add(activity.Event{
		At:       time.Now(),
		Type:     activity.EventPrediction,
		Username: u.Username,
		Rows:     summary.RowCount,
		Note:     summary.ResultName,
	})

	vm.Result = &summary
	h.render(w, "predict.html", vm)
}

// saveUpload keeps a copy of the raw upload for traceability. Failure to
// save never fails the request.
func (h *Handler) saveUpload(filename string, data []byte) {
	if h.UploadDir == "" {
		return
	}
	name := sanitizeFilename(filename)
	if name == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(h.UploadDir, name), data, 0o644); err != nil {
		log.Printf("save upload %s: %v", name, err)
	}
}

// sanitizeFilename reduces a client-supplied filename to a safe basename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return ""
	}
	return out
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())

	name, rc, err := results.Resolve(r.Context(), h.Pointers, h.Files, u.Username)
	switch {
	case errors.Is(err, results.ErrNeverPredicted):
		http.Error(w, "No predictions available.", http.StatusBadRequest)
		return
	case errors.Is(err, results.ErrStorageMissing):
		http.Error(w, "Prediction file not found.", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	h.Activity.Add(activity.Event{
		At:       time.Now(),
		Type:     activity.EventDownload,
		Username: u.Username,
		Note:     name,
	})

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("download %s: %v", name, err)
	}
}
