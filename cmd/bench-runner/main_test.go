package main

import (
	"testing"
	"time"
)

func TestInprocPlaceNeverOversells(t *testing.T) {
	tgt, err := newInprocTarget("P1", 40)
	if err != nil {
		t.Fatalf("new target: %v", err)
	}

	res := run(tgt, options{scenario: "place", productID: "P1", quantity: 3, total: 100, concurrency: 16, timeout: 5 * time.Second})

	if res.SuccessfulRequests != 13 || res.RejectedRequests != 87 || res.ErrorRequests != 0 {
		t.Errorf("unexpected outcome: ok=%d rejected=%d errors=%d (%s)",
			res.SuccessfulRequests, res.RejectedRequests, res.ErrorRequests, res.FirstError)
	}
	if got := tgt.stock(); got != 1 {
		t.Errorf("expected stock 1, got %d", got)
	}
	if oversold("place", 40, tgt.stock(), res.SuccessfulRequests*3) {
		t.Error("oversold")
	}
}

func TestInprocCancelRestoresExactlyOnce(t *testing.T) {
	tgt, err := newInprocTarget("P1", 20)
	if err != nil {
		t.Fatalf("new target: %v", err)
	}

	res := run(tgt, options{scenario: "cancel", productID: "P1", quantity: 2, total: 50, concurrency: 8, timeout: 5 * time.Second})

	if res.DoubleCancels != 0 || res.ErrorRequests != 0 {
		t.Errorf("double=%d errors=%d first=%s", res.DoubleCancels, res.ErrorRequests, res.FirstError)
	}
	if got := tgt.stock(); got != 20 {
		t.Errorf("expected all stock back, got %d", got)
	}
}

func TestOversold(t *testing.T) {
	tests := []struct {
		scenario             string
		initial, final, sold int
		want                 bool
	}{
		{"place", 10, 4, 6, false},
		{"place", 10, 4, 5, true},
		{"place", 10, -1, 11, true},
		{"cancel", 10, 10, 6, false},
		{"cancel", 10, 8, 6, true},
	}
	for _, test := range tests {
		if got := oversold(test.scenario, test.initial, test.final, test.sold); got != test.want {
			t.Errorf("oversold(%s, %d, %d, %d) = %v", test.scenario, test.initial, test.final, test.sold, got)
		}
	}
}

func TestPercentile(t *testing.T) {
	p50, p90, p95, p99 := calcPercentiles([]float64{5, 1, 4, 2, 3, 6, 7, 8, 9, 10})
	if p50 != 5 || p90 != 9 || p95 != 10 || p99 != 10 {
		t.Errorf("unexpected percentiles %v %v %v %v", p50, p90, p95, p99)
	}
}
