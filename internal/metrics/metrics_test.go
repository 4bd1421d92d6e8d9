package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPipeline(t *testing.T) {
	before := testutil.ToFloat64(PipelineErrors.WithLabelValues("hourly_profile"))

	RecordPipeline("hourly_profile", 5*time.Millisecond, nil)
	RecordPipeline("hourly_profile", 5*time.Millisecond, errors.New("store unavailable"))

	after := testutil.ToFloat64(PipelineErrors.WithLabelValues("hourly_profile"))
	if after-before != 1 {
		t.Errorf("Expected one pipeline error, got %v", after-before)
	}
}

func TestRecordLedgerFailure(t *testing.T) {
	before := testutil.ToFloat64(LedgerFailures.WithLabelValues("created"))
	RecordLedgerFailure("created")
	RecordLedgerFailure("created")

	if got := testutil.ToFloat64(LedgerFailures.WithLabelValues("created")) - before; got != 2 {
		t.Errorf("Expected 2 ledger failures, got %v", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequests.WithLabelValues("GET", "/feed", "200"))
	RecordAPIRequest("GET", "/feed", 200, time.Millisecond)

	if got := testutil.ToFloat64(APIRequests.WithLabelValues("GET", "/feed", "200")) - before; got != 1 {
		t.Errorf("Expected 1 request, got %v", got)
	}
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("records", 2)
	if got := testutil.ToFloat64(BreakerState.WithLabelValues("records")); got != 2 {
		t.Errorf("Expected state 2, got %v", got)
	}
}
