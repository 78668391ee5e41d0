package control

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/runner"
)

type fakeController struct {
	mu     sync.Mutex
	paused bool
	runErr error
	runs   int
}

func (f *fakeController) Status() runner.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return runner.Status{Paused: f.paused, Spec: "weekdays all day hourly", Runs: f.runs}
}

func (f *fakeController) Pause() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := !f.paused
	f.paused = true
	return changed
}

func (f *fakeController) Resume() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.paused
	f.paused = false
	return changed
}

func (f *fakeController) RunNow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return f.runErr
	}
	f.runs++
	return nil
}

func newTestServer(ctl Controller) *Server {
	return NewServer(ctl, Options{Bind: "127.0.0.1:0", MetricsBind: MetricsOff, CommandRate: 1000})
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeController{})
	w := ut.PerformRequest(s.h.Engine, http.MethodGet, "/health", nil)
	if code := w.Result().StatusCode(); code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", code)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(&fakeController{paused: true})
	w := ut.PerformRequest(s.h.Engine, http.MethodGet, "/status", nil)
	if code := w.Result().StatusCode(); code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", code)
	}
	var st runner.Status
	if err := sonic.Unmarshal(w.Result().Body(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Paused || st.Spec != "weekdays all day hourly" {
		t.Fatalf("status = %+v", st)
	}
}

func TestPauseResume(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(ctl)

	tests := []struct {
		path        string
		wantChanged bool
		wantPaused  bool
	}{
		{"/pause", true, true},
		{"/pause", false, true},
		{"/resume", true, false},
		{"/resume", false, false},
	}
	for _, tt := range tests {
		w := ut.PerformRequest(s.h.Engine, http.MethodPost, tt.path, nil)
		if code := w.Result().StatusCode(); code != http.StatusOK {
			t.Fatalf("POST %s = %d, want 200", tt.path, code)
		}
		var resp CommandResponse
		if err := sonic.Unmarshal(w.Result().Body(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Changed != tt.wantChanged || resp.Status == nil || resp.Status.Paused != tt.wantPaused {
			t.Fatalf("POST %s = %+v, want changed=%v paused=%v", tt.path, resp, tt.wantChanged, tt.wantPaused)
		}
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		runErr error
		want   int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"busy", executor.ErrBusy, http.StatusConflict},
		{"stopped", runner.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		s := newTestServer(&fakeController{runErr: tt.runErr})
		w := ut.PerformRequest(s.h.Engine, http.MethodPost, "/run", nil)
		if code := w.Result().StatusCode(); code != tt.want {
			t.Errorf("%s: POST /run = %d, want %d", tt.name, code, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	s := NewServer(&fakeController{}, Options{Bind: "127.0.0.1:0", MetricsBind: MetricsOff, CommandRate: 0.001})

	limited := false
	for i := 0; i < 10; i++ {
		w := ut.PerformRequest(s.h.Engine, http.MethodPost, "/pause", nil)
		if w.Result().StatusCode() == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected a 429 after the burst was spent")
	}

	// reads are never limited
	w := ut.PerformRequest(s.h.Engine, http.MethodGet, "/status", nil)
	if code := w.Result().StatusCode(); code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", code)
	}
}
