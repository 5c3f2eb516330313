package web

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcules/predict-server/internal/activity"
	"github.com/mcules/predict-server/internal/auth"
	"github.com/mcules/predict-server/internal/metrics"
	"github.com/mcules/predict-server/internal/pipeline"
	"github.com/mcules/predict-server/internal/results"
	"github.com/mcules/predict-server/internal/schema"
	"github.com/mcules/predict-server/internal/store"
)

type sumModel struct{}

func (sumModel) FeatureCount() int { return 2 }

func (sumModel) Predict(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = []float64{r[0] + r[1]}
	}
	return out, nil
}

type env struct {
	mux        *http.ServeMux
	resultsDir string
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	dataStore, err := store.Open(filepath.Join(dir, "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dataStore.Close() })

	targetPath := filepath.Join(dir, "target_cols.json")
	require.NoError(t, os.WriteFile(targetPath, []byte(`["y"]`), 0o644))
	featurePath := filepath.Join(dir, "feature_cols.json")
	require.NoError(t, os.WriteFile(featurePath, []byte(`["x1","x2"]`), 0o644))
	registry, err := schema.Load(targetPath, featurePath, 2)
	require.NoError(t, err)

	resultsDir := filepath.Join(dir, "results")
	files, err := results.NewFileStore(resultsDir)
	require.NoError(t, err)

	authenticator := auth.NewAuthenticator(dataStore)
	runner := pipeline.NewRunner(registry, sumModel{}, files, dataStore)

	h, err := NewHandler(
		authenticator, runner, files, dataStore, activity.New(10),
		metrics.NewLatencyTracker(0.2), registry, filepath.Join(dir, "uploads"), "templates",
	)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(h.UploadDir, 0o755))

	mux := http.NewServeMux()
	h.Register(mux)
	return &env{mux: mux, resultsDir: resultsDir}
}

func (e *env) signupAndLogin(t *testing.T) *http.Cookie {
	t.Helper()

	form := "username=alice&email=alice%40example.com&password=s3cret"
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=alice%40example.com&password=s3cret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))

	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func multipartUpload(t *testing.T, filename, body string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *env) predict(t *testing.T, cookie *http.Cookie, filename, body string) *httptest.ResponseRecorder {
	t.Helper()
	buf, contentType := multipartUpload(t, filename, body)
	req := httptest.NewRequest(http.MethodPost, "/predict", buf)
	req.Header.Set("Content-Type", contentType)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func TestPredictAndDownloadFlow(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signupAndLogin(t)

	// Fresh session: download before any prediction.
	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Upload and predict.
	w = e.predict(t, cookie, "batch.csv", "ID,x1,x2\n1,2,3\n2,5,5\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Prediction done!")
	assert.Contains(t, w.Body.String(), "2 rows processed")

	// Download the stored table.
	req = httptest.NewRequest(http.MethodGet, "/download", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID,y\n1,5\n2,10\n", w.Body.String())
}

func TestDownloadAfterResultDeleted(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signupAndLogin(t)

	w := e.predict(t, cookie, "batch.csv", "x1,x2\n1,1\n")
	require.Equal(t, http.StatusOK, w.Code)

	// Remove the stored file out-of-band.
	entries, err := os.ReadDir(e.resultsDir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NoError(t, os.Remove(filepath.Join(e.resultsDir, entry.Name())))
	}

	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadRequiresSession(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestPredictWithoutSessionShowsAuthError(t *testing.T) {
	e := newTestEnv(t)

	w := e.predict(t, nil, "batch.csv", "x1,x2\n1,1\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "please log in")
}

func TestPredictRendersPipelineErrors(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signupAndLogin(t)

	w := e.predict(t, cookie, "batch.txt", "x1,x2\n1,1\n")
	assert.Contains(t, w.Body.String(), "unsupported file type")

	w = e.predict(t, cookie, "batch.csv", "ID,x1\n1,2\n")
	assert.Contains(t, w.Body.String(), "missing features: x2")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=alice%40example.com&password=nope"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"batch.csv":        "batch.csv",
		"../../etc/passwd": "passwd",
		"my data (1).csv":  "my_data__1_.csv",
		"...":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeFilename(in), "input %q", in)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
