package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"outagebot/internal/metrics"
	logx "outagebot/pkg/logx"
)

type Job func(ctx context.Context) error

// runState guards a task against overlapping runs.
type runState struct {
	inflight atomic.Bool
}

func (s *runState) tryAcquire() bool { return s.inflight.CompareAndSwap(false, true) }
func (s *runState) release()         { s.inflight.Store(false) }

type taskDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
	runs    uint64
	skips   uint64
}

type Info struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Running bool          `json:"running"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
	LastRun time.Time     `json:"last_run"`
	LastErr string        `json:"last_err,omitempty"`
	Runs    uint64        `json:"runs"`
	Skips   uint64        `json:"skips"`
}

type Runner struct {
	log logx.Logger
	loc *time.Location
	now func() time.Time

	parser cron.Parser

	mu   sync.Mutex
	c    *cron.Cron
	defs map[string]*taskDef
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func New(loc *time.Location, log logx.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		log: log,
		loc: loc,
		now: time.Now,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*taskDef{},
	}
}

// AddCron registers job under a cron spec. Re-adding a name replaces the
// previous registration.
func (r *Runner) AddCron(name, spec string, timeout time.Duration, job Job) error {
	sched, err := r.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("task %s: invalid spec %q: %w", name, spec, err)
	}
	return r.add(name, spec, sched, timeout, job)
}

// AddInterval registers job every d. The first run is spread randomly over
// min(d, 30s) after the first interval so several tasks started together do
// not fire in lockstep.
func (r *Runner) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("task %s: interval must be > 0", name)
	}
	sched, jitter := intervalWithSpread(every, r.now(), name)
	if jitter > 0 {
		r.log.Debug("startup spread applied", logx.String("task", name), logx.Duration("spread", jitter))
	}
	return r.add(name, "@every "+every.String(), sched, timeout, job)
}

func (r *Runner) add(name, spec string, sched cron.Schedule, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("task name required")
	}
	if job == nil {
		return fmt.Errorf("task %s: job is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.defs[name]; ok && r.c != nil {
		r.c.Remove(old.entryID)
	}
	d := &taskDef{name: name, spec: spec, timeout: timeout, job: job, state: &runState{}}
	r.defs[name] = d
	if r.c == nil {
		r.startLocked()
	}
	d.entryID = r.c.Schedule(sched, cron.FuncJob(func() { r.trigger(d) }))
	r.log.Debug("task registered", logx.String("task", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

// startLocked creates the cron instance. Callers hold r.mu.
func (r *Runner) startLocked() {
	r.base, r.stop = context.WithCancel(context.Background())
	r.c = cron.New(cron.WithParser(r.parser), cron.WithLocation(r.loc))
	r.c.Start()
}

// Remove unregisters a task. Returns false when the name is unknown.
func (r *Runner) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[name]
	if !ok {
		return false
	}
	if r.c != nil {
		r.c.Remove(d.entryID)
	}
	delete(r.defs, name)
	return true
}

// RunNow triggers a task immediately, subject to the same reentrancy guard.
func (r *Runner) RunNow(name string) bool {
	r.mu.Lock()
	d, ok := r.defs[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.trigger(d)
	return true
}

func (r *Runner) trigger(d *taskDef) {
	r.mu.Lock()
	base := r.base
	r.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}
	if !d.state.tryAcquire() {
		d.mu.Lock()
		d.skips++
		d.mu.Unlock()
		metrics.TaskRuns.WithLabelValues(d.name, "skipped").Inc()
		r.log.Debug("task skipped; previous run in flight", logx.String("task", d.name))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer d.state.release()
		r.execute(base, d)
	}()
}

func (r *Runner) execute(base context.Context, d *taskDef) {
	ctx := base
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, d.timeout)
		defer cancel()
	}

	start := r.now()
	result := "ok"
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				result = "panic"
				err = fmt.Errorf("panic: %v", p)
				r.log.Error("task panicked", logx.String("task", d.name), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			}
		}()
		return d.job(ctx)
	}()
	took := time.Since(start)

	d.mu.Lock()
	d.lastRun = start
	d.runs++
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()

	if err != nil && result == "ok" {
		result = "error"
	}
	metrics.TaskRuns.WithLabelValues(d.name, result).Inc()
	if err != nil {
		r.log.Warn("task failed", logx.String("task", d.name), logx.Duration("took", took), logx.Err(err))
		return
	}
	r.log.Debug("task done", logx.String("task", d.name), logx.Duration("took", took))
}

// Stop stops triggering and cancels in-flight runs. It does not wait for
// them; use Wait for that.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.c
	stop := r.stop
	r.c = nil
	r.mu.Unlock()
	if c != nil {
		c.Stop()
	}
	if stop != nil {
		stop()
	}
	r.log.Info("task runner stopped")
}

// Wait blocks until in-flight runs return or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot lists registered tasks sorted by name.
func (r *Runner) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.defs))
	for _, d := range r.defs {
		info := Info{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.state.inflight.Load()}
		if r.c != nil {
			e := r.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		d.mu.Lock()
		info.LastRun, info.LastErr, info.Runs, info.Skips = d.lastRun, d.lastErr, d.runs, d.skips
		d.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
