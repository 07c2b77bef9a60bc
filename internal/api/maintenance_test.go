package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/maintenance"
)

type fakeMaintenance struct {
	retention maintenance.RetentionSummary
	integrity maintenance.IntegritySummary
	err       error
}

func (f *fakeMaintenance) RunRetentionOnce(_ context.Context) (maintenance.RetentionSummary, error) {
	return f.retention, f.err
}

func (f *fakeMaintenance) RunIntegrityCheckOnce(_ context.Context) (maintenance.IntegritySummary, error) {
	return f.integrity, f.err
}

func TestRetentionRunEndpoint(t *testing.T) {
	cfg, err := config.Load("streamlens-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		Maintenance: &fakeMaintenance{retention: maintenance.RetentionSummary{ExportsDeleted: 2}},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/retention/run", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Status  string                       `json:"status"`
		Summary maintenance.RetentionSummary `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "completed" || payload.Summary.ExportsDeleted != 2 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestIntegrityRunEndpointReportsFailure(t *testing.T) {
	cfg, err := config.Load("streamlens-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		Maintenance: &fakeMaintenance{err: errors.New("missing export object")},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/integrity/run", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRetentionRunRequiresConfiguredService(t *testing.T) {
	cfg, err := config.Load("streamlens-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/retention/run", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
