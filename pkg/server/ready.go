package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ReadinessCheck probes one dependency. detail is reported as-is and may
// be nil.
type ReadinessCheck func(ctx context.Context) (detail any, err error)

const readyTimeout = 2 * time.Second

type checkResult struct {
	OK     bool   `json:"ok"`
	Detail any    `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

type readyBody struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// handleReady runs every readiness check concurrently and answers 503 when
// any of them fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.opts.Readiness))
	for name := range s.opts.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]checkResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check ReadinessCheck) {
			defer wg.Done()
			detail, err := check(ctx)
			results[i] = checkResult{OK: err == nil, Detail: detail}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i, s.opts.Readiness[name])
	}
	wg.Wait()

	body := readyBody{Status: "ready", Checks: make(map[string]checkResult, len(names))}
	code := http.StatusOK
	for i, name := range names {
		body.Checks[name] = results[i]
		if !results[i].OK {
			body.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}
