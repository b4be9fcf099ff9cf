package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeRunner struct {
	requests []batch.RunRequest
	err      error
	running  bool
}

func (f *fakeRunner) Start(_ context.Context, req batch.RunRequest) (*models.ConversionRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &models.ConversionRun{ID: uuid.New(), Status: models.RunStatusRunning, Partitions: req.Partitions, FullReload: req.FullReload}, nil
}

func (f *fakeRunner) Running() bool { return f.running }

type fakeRuns struct {
	runs   map[uuid.UUID]*models.ConversionRun
	errors map[uuid.UUID][]models.ErrorEntry
	limit  int
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*models.ConversionRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conversion run %s does not exist", id)
	}
	return run, nil
}

func (f *fakeRuns) ListRecent(_ context.Context, limit int) ([]models.ConversionRun, error) {
	f.limit = limit
	out := make([]models.ConversionRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRuns) ListErrors(_ context.Context, id uuid.UUID, kind models.ErrorKind) ([]models.ErrorEntry, error) {
	var out []models.ErrorEntry
	for _, e := range f.errors[id] {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestServer(runner *fakeRunner, runs *fakeRuns) http.Handler {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRouter("fern-test", NewConversionHandler(runner, runs, logger), health.NewChecker("test"), logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestConversionHandler_Start(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(runner, &fakeRuns{})

	rec := do(t, srv, http.MethodPost, "/api/v1/conversions", `{"partitions":8,"full_reload":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.RunID)
	assert.Equal(t, models.RunStatusRunning, resp.Status)
	assert.Equal(t, []batch.RunRequest{{Partitions: 8, FullReload: true}}, runner.requests)
}

func TestConversionHandler_StartWithoutBody(t *testing.T) {
	runner := &fakeRunner{}
	rec := do(t, newTestServer(runner, &fakeRuns{}), http.MethodPost, "/api/v1/conversions", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []batch.RunRequest{{}}, runner.requests)
}

func TestConversionHandler_StartRejects(t *testing.T) {
	t.Run("run in progress", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeRunner{err: batch.ErrRunInProgress}, &fakeRuns{}), http.MethodPost, "/api/v1/conversions", `{}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid partitions", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeRunner{}, &fakeRuns{}), http.MethodPost, "/api/v1/conversions", `{"partitions":-1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeRunner{}, &fakeRuns{}), http.MethodPost, "/api/v1/conversions", `{"partitions":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConversionHandler_Get(t *testing.T) {
	id := uuid.New()
	summary := models.NewConversionSummary()
	summary.ReadCount = 10
	runs := &fakeRuns{
		runs: map[uuid.UUID]*models.ConversionRun{id: {ID: id, Status: models.RunStatusCompleted, Summary: summary}},
		errors: map[uuid.UUID][]models.ErrorEntry{id: {
			{Key: "123456789", Kind: models.ErrorKindValidation, Reason: "bad date"},
			{Key: "223456789", Kind: models.ErrorKindUpstream, Reason: "timeout"},
		}},
	}
	srv := newTestServer(&fakeRunner{}, runs)

	t.Run("by id", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/conversions/"+id.String(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var run models.ConversionRun
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, models.RunStatusCompleted, run.Status)
		require.NotNil(t, run.Summary)
		assert.Equal(t, int64(10), run.Summary.ReadCount)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/conversions/"+uuid.NewString(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/conversions/nope", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("errors filtered by kind", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/conversions/"+id.String()+"/errors?kind=upstream_failure", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []models.ErrorEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "223456789", entries[0].Key)
	})

	t.Run("errors with unknown kind", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/conversions/"+id.String()+"/errors?kind=bogus", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConversionHandler_List(t *testing.T) {
	runs := &fakeRuns{runs: map[uuid.UUID]*models.ConversionRun{uuid.New(): {Status: models.RunStatusRunning}}}
	srv := newTestServer(&fakeRunner{running: true}, runs)

	rec := do(t, srv, http.MethodGet, "/api/v1/conversions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)

	var body struct {
		Running bool                   `json:"running"`
		Runs    []models.ConversionRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Len(t, body.Runs, 1)

	rec = do(t, srv, http.MethodGet, "/api/v1/conversions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HealthRoutes(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeRuns{})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/health/ready", "").Code)

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
