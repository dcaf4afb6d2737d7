package worker

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned by Start while another job is running.
var ErrBusy = errors.New("another operation is still running")

// Kind names a job type.
type Kind string

const (
	KindReload Kind = "reload"
	KindSearch Kind = "search"
)

// Job is one unit of background work. Run may call progress any number of
// times; the values are delivered to the program as ProgressMsg.
type Job struct {
	Kind Kind
	Run  func(ctx context.Context, progress func(any)) (any, error)
}

// StartedMsg is a tea.Msg sent when a job begins.
type StartedMsg struct {
	JobID string
	Kind  Kind
}

// ProgressMsg is a tea.Msg carrying an intermediate value of a job.
type ProgressMsg struct {
	JobID string
	Kind  Kind
	Value any
}

// ResultMsg is a tea.Msg sent when a job completes, fails, or is cancelled.
type ResultMsg struct {
	JobID    string
	Kind     Kind
	Value    any
	Err      error
	Canceled bool
	Elapsed  time.Duration
}

// Runner executes at most one job at a time off the UI goroutine and
// streams its messages to the Bubble Tea runtime.
type Runner struct {
	resultCh chan tea.Msg
	log      logrus.FieldLogger

	mu      gosync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a Runner.
func New(log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		resultCh: make(chan tea.Msg, 64),
		log:      log,
	}
}

// Start launches job on a goroutine. It returns ErrBusy if a job is
// already running.
func (r *Runner) Start(job Job) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	r.trySend(StartedMsg{JobID: id, Kind: job.Kind})
	go r.run(ctx, cancel, id, job)

	return id, nil
}

// Busy reports whether a job is running.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Cancel asks the running job to stop. It reports whether there was one.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, id string, job Job) {
	defer cancel()

	log := r.log.WithField("job", id).WithField("kind", job.Kind)
	log.Debug("Job started")
	began := time.Now()

	progress := func(v any) {
		r.trySend(ProgressMsg{JobID: id, Kind: job.Kind, Value: v})
	}

	value, err := job.Run(ctx, progress)

	msg := ResultMsg{
		JobID:    id,
		Kind:     job.Kind,
		Value:    value,
		Err:      err,
		Canceled: errors.Is(err, context.Canceled),
		Elapsed:  time.Since(began),
	}

	switch {
	case msg.Canceled:
		log.Info("Job cancelled")
	case err != nil:
		log.WithError(err).Warn("Job failed")
	default:
		log.WithField("elapsed", msg.Elapsed.Round(time.Millisecond)).Debug("Job finished")
	}

	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	r.send(msg)
}

// send delivers msg, blocking until there is room.
func (r *Runner) send(msg tea.Msg) {
	r.resultCh <- msg
}

// trySend delivers msg without blocking. Progress is dropped when the
// channel is full.
func (r *Runner) trySend(msg tea.Msg) {
	select {
	case r.resultCh <- msg:
	default:
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next runner
// message. Call it again after handling each message to keep listening.
func (r *Runner) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-r.resultCh
		if !ok {
			return nil
		}
		return msg
	}
}
