package health

import (
	"context"
	"errors"
	"testing"

	"github.com/chabad-mafteach/mafteach/internal/cache"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestCheckAllHealthy(t *testing.T) {
	svc := New(fakePinger{}, fakeChecker{}, nil)

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %s, want %s", report.Status, Healthy)
	}
	if report.Checks["cms"] != CheckOK || report.Checks["embedding"] != CheckOK {
		t.Errorf("checks = %v", report.Checks)
	}
	if report.Cache != nil {
		t.Error("cache stats reported without a reporter")
	}
}

func TestCheckCMSDown(t *testing.T) {
	svc := New(fakePinger{err: errors.New("connection refused")}, fakeChecker{}, nil)

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %s, want %s", report.Status, Degraded)
	}
	if report.Checks["cms"] != CheckError {
		t.Errorf("cms check = %s, want error", report.Checks["cms"])
	}
}

func TestCheckEmbeddingDownDegrades(t *testing.T) {
	svc := New(fakePinger{}, fakeChecker{err: errors.New("401")}, nil)

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %s, want %s", report.Status, Degraded)
	}
	if report.Checks["embedding"] != CheckError {
		t.Errorf("embedding check = %s, want error", report.Checks["embedding"])
	}
}

func TestCheckNilEmbedding(t *testing.T) {
	svc := New(fakePinger{}, nil, nil)

	report := svc.Check(context.Background())
	if _, ok := report.Checks["embedding"]; ok {
		t.Error("embedding check present without a checker")
	}
	if report.Status != Healthy {
		t.Errorf("status = %s, want %s", report.Status, Healthy)
	}
}

func TestCheckIncludesCacheStats(t *testing.T) {
	mem := cache.NewMemory()
	_ = mem.Set(context.Background(), "k", []byte("v"), 0)
	svc := New(fakePinger{}, nil, mem)

	report := svc.Check(context.Background())
	if report.Cache == nil {
		t.Fatal("cache stats missing")
	}
	if report.Cache.Entries != 1 {
		t.Errorf("entries = %d, want 1", report.Cache.Entries)
	}
}
