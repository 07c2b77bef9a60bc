package loader

import (
	"context"
	"testing"
	"time"

	"github.com/streamlens/streamlens/internal/gateway"
)

func TestRefreshStatementCachesWithinTTL(t *testing.T) {
	stub := &stubClient{detail: gateway.StatementDetail{Name: "stmt-1", Phase: gateway.PhaseRunning}}
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	l := New(stub, 2*time.Second)
	l.Clock = func() time.Time { return now }

	handle := gateway.StatementHandle{Name: "stmt-1", Environment: "env-1"}
	if _, err := l.RefreshStatement(context.Background(), handle); err != nil {
		t.Fatalf("RefreshStatement() error = %v", err)
	}
	if _, err := l.RefreshStatement(context.Background(), handle); err != nil {
		t.Fatalf("RefreshStatement() error = %v", err)
	}
	if stub.getCalls != 1 {
		t.Fatalf("gateway calls = %d, want 1", stub.getCalls)
	}

	now = now.Add(3 * time.Second)
	if _, err := l.RefreshStatement(context.Background(), handle); err != nil {
		t.Fatalf("RefreshStatement() error = %v", err)
	}
	if stub.getCalls != 2 {
		t.Fatalf("gateway calls = %d, want 2 after TTL expiry", stub.getCalls)
	}
}

func TestRefreshStatementZeroTTLAlwaysFetches(t *testing.T) {
	stub := &stubClient{detail: gateway.StatementDetail{Name: "stmt-1"}}
	l := New(stub, 0)

	handle := gateway.StatementHandle{Name: "stmt-1", Environment: "env-1"}
	for range 3 {
		if _, err := l.RefreshStatement(context.Background(), handle); err != nil {
			t.Fatalf("RefreshStatement() error = %v", err)
		}
	}
	if stub.getCalls != 3 {
		t.Fatalf("gateway calls = %d, want 3", stub.getCalls)
	}
}

func TestStopStatementInvalidatesCache(t *testing.T) {
	stub := &stubClient{detail: gateway.StatementDetail{Name: "stmt-1", Phase: gateway.PhaseRunning}}
	l := New(stub, time.Minute)

	handle := gateway.StatementHandle{Name: "stmt-1", Environment: "env-1"}
	if _, err := l.RefreshStatement(context.Background(), handle); err != nil {
		t.Fatalf("RefreshStatement() error = %v", err)
	}
	if err := l.StopStatement(context.Background(), handle); err != nil {
		t.Fatalf("StopStatement() error = %v", err)
	}
	if stub.stopCalls != 1 {
		t.Fatalf("stop calls = %d", stub.stopCalls)
	}

	stub.detail.Phase = gateway.PhaseStopped
	detail, err := l.RefreshStatement(context.Background(), handle)
	if err != nil {
		t.Fatalf("RefreshStatement() error = %v", err)
	}
	if detail.Phase != gateway.PhaseStopped {
		t.Fatalf("Phase = %q, want fresh phase after stop", detail.Phase)
	}
	if stub.getCalls != 2 {
		t.Fatalf("gateway calls = %d, want cache bypass after stop", stub.getCalls)
	}
}

type stubClient struct {
	detail    gateway.StatementDetail
	getCalls  int
	stopCalls int
}

func (s *stubClient) GetStatement(context.Context, gateway.StatementHandle) (gateway.StatementDetail, error) {
	s.getCalls++
	return s.detail, nil
}

func (s *stubClient) StopStatement(context.Context, gateway.StatementHandle) error {
	s.stopCalls++
	return nil
}
