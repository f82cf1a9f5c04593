package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName == "" {
		t.Error("service name must have a default")
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("sample rate = %f", cfg.SampleRate)
	}
	if cfg.BatchTimeout != 5*time.Second {
		t.Errorf("batch timeout = %v", cfg.BatchTimeout)
	}
}

func TestDisabledProviderIsInert(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// Every recording path must be a safe no-op.
	p.RecordOrderCreated(ctx, "INR")
	p.RecordOrderPaid(ctx, "INR", 30000)
	p.RecordOrderFailed(ctx, "verification_rejected")

	opCtx, done := p.TrackOperation(ctx, "checkout.confirm")
	if opCtx == nil {
		t.Fatal("TrackOperation returned nil context")
	}
	done(errors.New("boom"))
	done2Ctx, done2 := p.TrackOperation(ctx, "checkout.create")
	_ = done2Ctx
	done2(nil)

	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestDisabledProviderTracer(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Tracer() == nil {
		t.Error("Tracer must fall back to the global tracer")
	}

	_, span := p.StartSpan(context.Background(), "test")
	span.End()
}
