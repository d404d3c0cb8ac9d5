package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aleksanaa/eportal-autologin/internal/eportal"
)

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	period  time.Duration
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// tick blocks until the monitor loop has taken the tick.
func (f *fakeTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor loop did not take tick")
	}
}

type fakeAttempter struct {
	mu      sync.Mutex
	calls   int
	active  int
	maxSeen int
	// block, when set, gates every call after the first.
	block chan struct{}
	kind  eportal.OutcomeKind
}

func (f *fakeAttempter) Attempt(ctx context.Context, creds eportal.Credentials, e eportal.Endpoints) eportal.Outcome {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	if n > 1 && f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return eportal.Outcome{AttemptID: creds.Username, Kind: f.kind}
}

func (f *fakeAttempter) stats() (calls, maxSeen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.maxSeen
}

type recorder struct {
	events chan Status
}

func newRecorder() *recorder { return &recorder{events: make(chan Status, 64)} }

func (r *recorder) StatusChanged(s Status) { r.events <- s }

func (r *recorder) next(t *testing.T) Status {
	t.Helper()
	select {
	case s := <-r.events:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("no status notification")
	}
	return Status{}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-r.events:
		t.Fatalf("unexpected notification %+v", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func waitIdle(t *testing.T, m *Monitor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().InFlight {
		if time.Now().After(deadline) {
			t.Fatalf("attempt never finished")
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestMonitor(a Attempter) (*Monitor, *fakeTicker, *recorder) {
	ft := &fakeTicker{ch: make(chan time.Time)}
	rec := newRecorder()
	m := New(a, nil, rec)
	m.newTicker = func(d time.Duration) ticker {
		ft.period = d
		return ft
	}
	return m, ft, rec
}

func validSettings() Settings {
	return Settings{
		Credentials: eportal.Credentials{Username: "u", Password: "p"},
		Endpoints:   eportal.DefaultEndpoints("172.16.200.101"),
		Interval:    10 * time.Second,
	}
}

func TestStart_RunsOneAttemptImmediately(t *testing.T) {
	fa := &fakeAttempter{kind: eportal.OutcomeOnline}
	m, ft, rec := newTestMonitor(fa)

	res := m.Start(validSettings())
	if !res.Success {
		t.Fatalf("expected start to succeed: %+v", res)
	}
	if calls, _ := fa.stats(); calls != 1 {
		t.Fatalf("expected exactly one immediate attempt, got %d", calls)
	}
	if ft.period != 10*time.Second {
		t.Fatalf("ticker period = %v", ft.period)
	}

	if s := rec.next(t); s.Event != EventStarted || !s.Running {
		t.Fatalf("expected started notification, got %+v", s)
	}
	s := rec.next(t)
	if s.Event != EventAttempted || s.LastOutcome == nil || s.LastOutcome.Kind != eportal.OutcomeOnline {
		t.Fatalf("expected attempt notification, got %+v", s)
	}
	rec.none(t)

	st := m.Status()
	if !st.Running || st.Interval != 10*time.Second || st.Attempts != 1 || st.InFlight {
		t.Fatalf("unexpected status %+v", st)
	}
	m.Stop()
}

func TestStart_TwiceIsRejected(t *testing.T) {
	m, _, _ := newTestMonitor(&fakeAttempter{})
	if res := m.Start(validSettings()); !res.Success {
		t.Fatalf("first start failed: %+v", res)
	}
	defer m.Stop()

	again := validSettings()
	again.Interval = time.Minute
	res := m.Start(again)
	if res.Success || res.Message == "" {
		t.Fatalf("expected reported failure, got %+v", res)
	}
	if st := m.Status(); st.Interval != 10*time.Second {
		t.Fatalf("interval changed to %v", st.Interval)
	}
}

func TestStop_BeforeStart(t *testing.T) {
	m, _, rec := newTestMonitor(&fakeAttempter{})
	if res := m.Stop(); res.Success {
		t.Fatalf("expected stop to fail when not running")
	}
	rec.none(t)
}

func TestStart_ValidationNamesMissingFields(t *testing.T) {
	fa := &fakeAttempter{}
	m, _, rec := newTestMonitor(fa)

	res := m.Start(Settings{Credentials: eportal.Credentials{Username: "u"}})
	if res.Success {
		t.Fatalf("expected validation failure")
	}
	if !errors.Is(res.Err, eportal.ErrValidation) {
		t.Fatalf("expected validation error, got %v", res.Err)
	}
	for _, field := range []string{"password", "server address", "check interval"} {
		if !strings.Contains(res.Message, field) {
			t.Fatalf("message %q does not name %q", res.Message, field)
		}
	}
	if strings.Contains(res.Message, "username") {
		t.Fatalf("message %q names a field that was set", res.Message)
	}
	if m.Status().Running {
		t.Fatalf("monitor should not be running")
	}
	if calls, _ := fa.stats(); calls != 0 {
		t.Fatalf("no attempt should run, got %d", calls)
	}
	rec.none(t)
}

func TestTick_SingleFlight(t *testing.T) {
	fa := &fakeAttempter{block: make(chan struct{})}
	m, ft, rec := newTestMonitor(fa)

	m.Start(validSettings())
	rec.next(t) // started
	rec.next(t) // first attempt

	ft.tick(t) // dispatches the second, blocked attempt
	ft.tick(t) // skipped
	ft.tick(t) // skipped
	if st := m.Status(); !st.InFlight {
		t.Fatalf("expected an attempt in flight")
	}
	rec.none(t)

	close(fa.block)
	if s := rec.next(t); s.Event != EventAttempted || s.Attempts != 2 {
		t.Fatalf("expected second attempt notification, got %+v", s)
	}
	rec.none(t)

	calls, maxSeen := fa.stats()
	if calls != 2 {
		t.Fatalf("expected overlapping ticks to be dropped, got %d calls", calls)
	}
	if maxSeen != 1 {
		t.Fatalf("expected at most one attempt at a time, saw %d", maxSeen)
	}

	waitIdle(t, m)
	ft.tick(t) // free again
	if s := rec.next(t); s.Attempts != 3 {
		t.Fatalf("expected third attempt, got %+v", s)
	}
	m.Stop()
}

func TestStop_WaitsForInFlightAttempt(t *testing.T) {
	fa := &fakeAttempter{block: make(chan struct{}), kind: eportal.OutcomeAuthSucceeded}
	m, ft, rec := newTestMonitor(fa)

	m.Start(validSettings())
	rec.next(t)
	rec.next(t)
	ft.tick(t)

	stopped := make(chan Result)
	go func() { stopped <- m.Stop() }()

	select {
	case res := <-stopped:
		t.Fatalf("stop returned before in-flight attempt finished: %+v", res)
	case <-time.After(30 * time.Millisecond):
	}
	if res := m.Stop(); res.Success {
		t.Fatalf("second concurrent stop should be rejected")
	}

	close(fa.block)
	res := <-stopped
	if !res.Success {
		t.Fatalf("stop failed: %+v", res)
	}

	if s := rec.next(t); s.Event != EventAttempted || s.LastOutcome.Kind != eportal.OutcomeAuthSucceeded {
		t.Fatalf("expected in-flight result before stop, got %+v", s)
	}
	s := rec.next(t)
	if s.Event != EventStopped || s.Running || s.InFlight || s.Interval != 0 {
		t.Fatalf("unexpected stop notification %+v", s)
	}
	if s.LastOutcome == nil || s.Attempts != 2 {
		t.Fatalf("expected last outcome to survive stop, got %+v", s)
	}
	if !ft.isStopped() {
		t.Fatalf("ticker not stopped")
	}
	if res := m.Stop(); res.Success {
		t.Fatalf("stop after stop should be rejected")
	}
}

func TestRestartAfterStop(t *testing.T) {
	fa := &fakeAttempter{}
	m, _, _ := newTestMonitor(fa)

	m.Start(validSettings())
	m.Stop()
	if res := m.Start(validSettings()); !res.Success {
		t.Fatalf("restart failed: %+v", res)
	}
	if st := m.Status(); st.Attempts != 1 || !st.Running {
		t.Fatalf("expected fresh state after restart, got %+v", st)
	}
	m.Stop()
}

func TestMonitor_RealTicker(t *testing.T) {
	fa := &fakeAttempter{}
	rec := newRecorder()
	m := New(fa, nil, rec)

	s := validSettings()
	s.Interval = 10 * time.Millisecond
	m.Start(s)
	rec.next(t)
	rec.next(t)
	if next := rec.next(t); next.Event != EventAttempted {
		t.Fatalf("expected timer-driven attempt, got %+v", next)
	}
	m.Stop()
}
