package db

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "vidq", "chunks")

	ch := make(chan *prometheus.Desc, 10)
	collector.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}
	if len(names) != 5 {
		t.Fatalf("expected 5 descriptors, got %d", len(names))
	}
	for _, want := range []string{"vidq_db_pool_total_conns", "vidq_db_pool_acquires_total"} {
		found := false
		for _, n := range names {
			if strings.Contains(n, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("descriptor %s not found", want)
		}
	}
}

func TestPoolStatsCollector_Collect_NilPool(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "vidq", "chunks")
	if n := testutil.CollectAndCount(collector); n != 0 {
		t.Errorf("expected 0 metrics for nil pool, got %d", n)
	}
}

func TestRegisterPoolStats_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	if _, err := RegisterPoolStats(reg, nil, "vidq", "chunks"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := RegisterPoolStats(reg, nil, "vidq", "chunks"); err != nil {
		t.Errorf("second register should be tolerated, got %v", err)
	}
}
