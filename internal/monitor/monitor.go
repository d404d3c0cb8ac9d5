// Package monitor runs authentication attempts on a timer, one at a time.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aleksanaa/eportal-autologin/internal/eportal"
)

// Attempter runs one authentication attempt. *eportal.Authenticator is one.
type Attempter interface {
	Attempt(ctx context.Context, creds eportal.Credentials, e eportal.Endpoints) eportal.Outcome
}

// Settings are copied into the monitor at Start and never changed after.
type Settings struct {
	Credentials eportal.Credentials
	Endpoints   eportal.Endpoints
	Interval    time.Duration
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) ticker { return timeTicker{time.NewTicker(d)} }

type Monitor struct {
	attempter Attempter
	log       *zap.Logger
	observers []Observer
	newTicker func(time.Duration) ticker

	// inFlight is the single-flight guard; set before an attempt is
	// dispatched and cleared after its result has been reported.
	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu       sync.Mutex
	running  bool
	stopping bool
	settings Settings
	stop     chan struct{}
	attempts int
	last     *eportal.Outcome
}

func New(a Attempter, log *zap.Logger, observers ...Observer) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		attempter: a,
		log:       log,
		observers: observers,
		newTicker: newTimeTicker,
	}
}

// Start validates s, runs one attempt right away and then one every
// s.Interval. It returns once the first attempt has completed.
func (m *Monitor) Start(s Settings) Result {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Warn("start rejected: monitor already running")
		return Result{Message: "monitor already running"}
	}
	if err := validate(s); err != nil {
		m.mu.Unlock()
		m.log.Warn("start rejected", zap.Error(err))
		return Result{Message: "invalid configuration: " + err.Error(), Err: err}
	}

	m.running = true
	m.settings = s
	m.attempts = 0
	m.last = nil
	m.stop = make(chan struct{})
	m.inFlight.Store(true)
	m.wg.Add(2)
	go m.loop(m.newTicker(s.Interval), m.stop, s)
	status := m.statusLocked(EventStarted)
	m.mu.Unlock()

	m.log.Info("monitor started", zap.String("host", s.Endpoints.ServerHost), zap.Duration("interval", s.Interval))
	m.notify(status)

	m.runAttempt(s)
	return Result{Success: true, Message: "monitor started"}
}

// Stop cancels future ticks and waits for an attempt already in flight,
// whose result is still recorded and reported before the stop is.
func (m *Monitor) Stop() Result {
	m.mu.Lock()
	if !m.running || m.stopping {
		m.mu.Unlock()
		return Result{Message: "monitor not running"}
	}
	m.stopping = true
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.stopping = false
	m.settings = Settings{}
	status := m.statusLocked(EventStopped)
	m.mu.Unlock()

	m.log.Info("monitor stopped")
	m.notify(status)
	return Result{Success: true, Message: "monitor stopped"}
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(EventSnapshot)
}

func (m *Monitor) loop(t ticker, stop <-chan struct{}, s Settings) {
	defer m.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
		}

		if !m.inFlight.CompareAndSwap(false, true) {
			m.log.Debug("attempt still in flight, tick skipped")
			continue
		}
		select {
		case <-stop:
			m.inFlight.Store(false)
			return
		default:
		}
		m.wg.Add(1)
		go m.runAttempt(s)
	}
}

// runAttempt expects inFlight to be set and one wg slot to be held for it.
func (m *Monitor) runAttempt(s Settings) {
	defer m.wg.Done()
	defer m.inFlight.Store(false)

	out := m.attempter.Attempt(context.Background(), s.Credentials, s.Endpoints)

	m.mu.Lock()
	m.attempts++
	m.last = &out
	status := m.statusLocked(EventAttempted)
	m.mu.Unlock()
	status.InFlight = false

	if out.Ok() {
		m.log.Info(out.String(), zap.String("attempt", out.AttemptID))
	} else {
		m.log.Warn("check failed: "+out.String(), zap.String("attempt", out.AttemptID))
	}
	m.notify(status)
}

func (m *Monitor) notify(s Status) {
	for _, o := range m.observers {
		o.StatusChanged(s)
	}
}

func (m *Monitor) statusLocked(ev Event) Status {
	s := Status{
		Running:  m.running,
		InFlight: m.inFlight.Load(),
		Attempts: m.attempts,
		Event:    ev,
	}
	if m.running {
		s.Interval = m.settings.Interval
		s.IntervalSec = m.settings.Interval.Seconds()
	}
	if m.last != nil {
		last := *m.last
		s.LastOutcome = &last
	}
	return s
}

func validate(s Settings) error {
	var missing []string
	var verr *eportal.ValidationError
	if err := eportal.Validate(s.Credentials, s.Endpoints); errors.As(err, &verr) {
		missing = append(missing, verr.Missing...)
	}
	if s.Interval <= 0 {
		missing = append(missing, "check interval")
	}
	if len(missing) > 0 {
		return &eportal.ValidationError{Missing: missing}
	}
	return nil
}
