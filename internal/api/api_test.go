package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/auth"
	"github.com/Martian-dev/ai-brain-ledger/internal/collector"
	"github.com/Martian-dev/ai-brain-ledger/internal/eventstore/memory"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

const testSecret = "api-test-secret-api-test-secret-0123"

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

type fakeReports struct{ report collector.Report }

func (f fakeReports) LastReport() (collector.Report, bool) { return f.report, true }

func newTestAPI(t *testing.T, reports ReportSource) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	ctrl := access.NewController(store, "deployer", logger)
	require.NoError(t, ctrl.Bootstrap(context.Background(), []access.Principal{"collector"}))
	svc := ledger.NewService(store, ctrl, ledger.Options{MaxBatchEntries: 3}, logger)

	srv, err := NewServer(svc, ctrl, reports, logger)
	require.NoError(t, err)
	return &testAPI{t: t, handler: srv.Router(auth.NewHMACVerifier(testSecret, ""))}
}

func (a *testAPI) do(as access.Principal, method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if as != "" {
		token, err := auth.SignToken(testSecret, as, "", time.Minute)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do("", http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthenticatedIs401(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do("", http.MethodGet, "/v1/users/alice/batches", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, codeUnauthenticated, decode[errorBody](t, w).Code)
}

func TestCommitAndReadBack(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do("collector", http.MethodPost, "/v1/users/alice/batches",
		`{"entries":[{"email_id":"e1","label":"CRITICAL","reasoning":"outage"},{"email_id":"e2","label":"INFO"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, commitResponse{BatchID: 1, EntryCount: 2}, decode[commitResponse](t, w))

	w = a.do("collector", http.MethodPost, "/v1/users/alice/batches",
		`{"entries":[{"email_id":"e3","label":"ACTION","reasoning":"reply"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do("alice", http.MethodGet, "/v1/users/alice/batches", "")
	require.Equal(t, http.StatusOK, w.Code)
	ids := decode[struct {
		BatchIDs []ledger.BatchID `json:"batch_ids"`
	}](t, w)
	assert.Equal(t, []ledger.BatchID{1, 2}, ids.BatchIDs)

	w = a.do("alice", http.MethodGet, "/v1/batches/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	b := decode[ledger.Batch](t, w)
	assert.Equal(t, access.Principal("alice"), b.Owner)
	assert.Equal(t, ledger.LabelCritical, b.Entries[0].Label)

	w = a.do("alice", http.MethodGet, "/v1/users/alice/recent?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[struct {
		Entries []ledger.Entry `json:"entries"`
	}](t, w)
	require.Len(t, recent.Entries, 2)
	assert.Equal(t, "e3", recent.Entries[0].EmailID)
	assert.Equal(t, "e1", recent.Entries[1].EmailID)

	w = a.do("alice", http.MethodGet, "/v1/users/alice/entries/e2", "")
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[findResponse](t, w)
	assert.True(t, found.Found)
	assert.Equal(t, ledger.LabelInfo, found.Entry.Label)

	w = a.do("alice", http.MethodGet, "/v1/users/alice/entries/missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[findResponse](t, w).Found)
}

func TestErrorCodes(t *testing.T) {
	a := newTestAPI(t, nil)
	require.Equal(t, http.StatusCreated, a.do("collector", http.MethodPost, "/v1/users/alice/batches",
		`{"entries":[{"email_id":"e1","label":"INFO"}]}`).Code)

	tests := []struct {
		name   string
		as     access.Principal
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"non-backend commit", "alice", http.MethodPost, "/v1/users/alice/batches", `{"entries":[{"email_id":"e","label":"INFO"}]}`, http.StatusForbidden, ledger.CodeUnauthorized},
		{"non-backend malformed commit", "alice", http.MethodPost, "/v1/users/alice/batches", `{"entries":`, http.StatusForbidden, ledger.CodeUnauthorized},
		{"non-backend malformed record", "alice", http.MethodPut, "/v1/users/alice/records/e1", `{"label":"URGENT"}`, http.StatusForbidden, ledger.CodeUnauthorized},
		{"empty batch", "collector", http.MethodPost, "/v1/users/alice/batches", `{"entries":[]}`, http.StatusBadRequest, ledger.CodeEmptyBatch},
		{"too large", "collector", http.MethodPost, "/v1/users/alice/batches", `{"entries":[{"email_id":"a","label":"INFO"},{"email_id":"b","label":"INFO"},{"email_id":"c","label":"INFO"},{"email_id":"d","label":"INFO"}]}`, http.StatusBadRequest, ledger.CodeBatchTooLarge},
		{"schema violation", "collector", http.MethodPost, "/v1/users/alice/batches", `{"entries":[{"email_id":"a","label":"URGENT"}]}`, http.StatusBadRequest, ledger.CodeInvalidArgument},
		{"unknown batch", "collector", http.MethodGet, "/v1/batches/99", "", http.StatusNotFound, ledger.CodeNotFound},
		{"bad batch id", "collector", http.MethodGet, "/v1/batches/x", "", http.StatusBadRequest, ledger.CodeInvalidArgument},
		{"foreign batch", "bob", http.MethodGet, "/v1/batches/1", "", http.StatusForbidden, ledger.CodeUnauthorized},
		{"foreign index", "collector", http.MethodGet, "/v1/users/alice/batches", "", http.StatusForbidden, ledger.CodeUnauthorized},
		{"foreign recent", "bob", http.MethodGet, "/v1/users/alice/recent", "", http.StatusForbidden, ledger.CodeUnauthorized},
		{"negative offset", "alice", http.MethodGet, "/v1/users/alice/recent?offset=-1", "", http.StatusBadRequest, ledger.CodeInvalidArgument},
		{"non-admin grant", "alice", http.MethodPut, "/v1/roles/BACKEND/members/alice", "", http.StatusForbidden, ledger.CodeUnauthorized},
		{"bad role", "deployer", http.MethodPut, "/v1/roles/0xzz/members/alice", "", http.StatusBadRequest, ledger.CodeInvalidArgument},
		{"collector status", "alice", http.MethodGet, "/v1/collector/status", "", http.StatusForbidden, ledger.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(tt.as, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, w).Code)
		})
	}
}

func TestRoleAdministration(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do("deployer", http.MethodPut, "/v1/roles/BACKEND/members/indexer", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do("alice", http.MethodGet, "/v1/roles/BACKEND/members/indexer", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["has_role"])

	require.Equal(t, http.StatusCreated, a.do("indexer", http.MethodPost, "/v1/users/alice/batches",
		`{"entries":[{"email_id":"e1","label":"INFO"}]}`).Code)

	w = a.do("deployer", http.MethodDelete, "/v1/roles/BACKEND/members/indexer", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do("indexer", http.MethodPost, "/v1/users/alice/batches", `{"entries":[{"email_id":"e2","label":"INFO"}]}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecordLifecycle(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do("collector", http.MethodPut, "/v1/users/alice/records/e1", `{"label":"ACTION","reasoning":"reply"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do("alice", http.MethodGet, "/v1/users/alice/records/e1", "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[ledger.Record](t, w)
	assert.Equal(t, ledger.LabelAction, rec.Entry.Label)
	assert.False(t, rec.IsDeleted)

	w = a.do("collector", http.MethodDelete, "/v1/users/alice/records/e1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ledger.Record](t, w).IsDeleted)

	w = a.do("alice", http.MethodGet, "/v1/users/alice/records/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do("collector", http.MethodPut, "/v1/users/alice/records/e2", `{"reasoning":"no label"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCollectorStatus(t *testing.T) {
	a := newTestAPI(t, fakeReports{collector.Report{Committed: 2, Failed: 1}})

	w := a.do("collector", http.MethodGet, "/v1/collector/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Enabled bool             `json:"enabled"`
		LastRun collector.Report `json:"last_run"`
	}](t, w)
	assert.True(t, body.Enabled)
	assert.Equal(t, 2, body.LastRun.Committed)
	assert.Equal(t, 1, body.LastRun.Failed)
}
