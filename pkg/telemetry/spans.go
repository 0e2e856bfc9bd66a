package telemetry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"meshchat/pkg/logger"
)

// Lightweight request tracing: by default only slow requests are logged, and
// a small deterministic sample of requests gets full span timing.

type ctxKeyType struct{}

var (
	requestCtr    uint64
	spanCtr       uint64
	sampleRate    = 0.001
	slowThreshold = 200 * time.Millisecond
)

type span struct {
	id       uint64
	op       string
	startMs  int64
	duration int64
}

type trace struct {
	requestID uint64
	op        string
	startTime time.Time

	mu    sync.Mutex
	spans []span
}

// Middleware records request timing; sampled requests also get span detail.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := atomic.AddUint64(&requestCtr, 1)

		var t *trace
		if shouldSample(r, reqID) {
			t = &trace{requestID: reqID, op: r.URL.Path, startTime: start}
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyType{}, t))
		}

		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)

		dur := time.Since(start)
		if t != nil {
			t.mu.Lock()
			for _, sp := range t.spans {
				logger.Debug("trace_span", "request", t.requestID, "op", sp.op, "start_ms", sp.startMs, "duration_ms", sp.duration)
			}
			t.mu.Unlock()
			logger.Info("trace_request", "request", reqID, "op", t.op, "duration_ms", dur.Milliseconds(), "status", srw.status)
			return
		}
		if dur > slowThreshold {
			logger.Warn("slow_request", "request", reqID, "path", r.URL.Path, "duration_ms", dur.Milliseconds(), "status", srw.status)
		}
	})
}

// StartSpan returns an end function; a no-op when the request is not sampled.
func StartSpan(ctx context.Context, name string) func() {
	t, ok := ctx.Value(ctxKeyType{}).(*trace)
	if !ok {
		return func() {}
	}
	startRel := time.Since(t.startTime).Milliseconds()
	id := atomic.AddUint64(&spanCtr, 1)

	t.mu.Lock()
	t.spans = append(t.spans, span{id: id, op: name, startMs: startRel})
	idx := len(t.spans) - 1
	t.mu.Unlock()

	return func() {
		endRel := time.Since(t.startTime).Milliseconds()
		t.mu.Lock()
		if idx < len(t.spans) {
			t.spans[idx].duration = endRel - t.spans[idx].startMs
		}
		t.mu.Unlock()
	}
}

// SetSampleRate sets the approximate sampling rate for full traces (0..1).
func SetSampleRate(r float64) {
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	sampleRate = r
}

// SetSlowThreshold sets the duration above which non-sampled requests are logged.
func SetSlowThreshold(d time.Duration) {
	if d > 0 {
		slowThreshold = d
	}
}

func shouldSample(r *http.Request, n uint64) bool {
	if r.Header.Get("X-Debug-Telemetry") == "1" {
		return true
	}
	if sampleRate <= 0 {
		return false
	}
	denom := uint64(1 / sampleRate)
	if denom <= 1 {
		return true
	}
	return n%denom == 0
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
