package pools

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrShutdownTimeout is returned by Shutdown when workers are still busy
// after the grace period.
var ErrShutdownTimeout = errors.New("worker pool: workers did not exit within grace period")

// Task is a unit of work consumed exactly once by exactly one worker.
type Task interface {
	Run()
}

// Rejecter is implemented by tasks that must release resources when the
// pool shuts down before they are started.
type Rejecter interface {
	Reject()
}

// TaskFunc adapts a function to Task.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() { f() }

// Config configures a WorkerPool.
type Config struct {
	Workers   int
	QueueSize int
	Logger    logrus.FieldLogger
}

// WorkerPool is a fixed set of workers draining a bounded FIFO queue.
// Submission never blocks longer than its timeout; a full queue is the
// caller's signal to shed load.
type WorkerPool struct {
	workers int
	queue   chan Task
	stop    chan struct{}
	log     logrus.FieldLogger

	// mu orders submissions against Shutdown: once Shutdown holds the
	// write lock no task can enter the queue.
	mu       sync.RWMutex
	closed   atomic.Bool
	stopOnce sync.Once
	done     []chan struct{}

	stats struct {
		submitted atomic.Uint64
		completed atomic.Uint64
		failed    atomic.Uint64
		rejected  atomic.Uint64
		shed      atomic.Uint64
		active    atomic.Int64
	}
}

// NewWorkerPool starts cfg.Workers workers.
func NewWorkerPool(cfg Config) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	p := &WorkerPool{
		workers: cfg.Workers,
		queue:   make(chan Task, cfg.QueueSize),
		stop:    make(chan struct{}),
		log:     cfg.Logger,
		done:    make([]chan struct{}, cfg.Workers),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.done[i] = make(chan struct{})
		go p.worker(i)
	}
	return p
}

// TrySubmit enqueues task, waiting at most timeout for queue space. It
// returns false when the queue stayed full or the pool is shutting down;
// the task is then still owned by the caller. A full queue counts as shed.
func (p *WorkerPool) TrySubmit(task Task, timeout time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return false
	}

	select {
	case p.queue <- task:
		p.stats.submitted.Add(1)
		return true
	default:
	}
	if timeout <= 0 {
		p.stats.shed.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p.queue <- task:
		p.stats.submitted.Add(1)
		return true
	case <-timer.C:
		p.stats.shed.Add(1)
		return false
	case <-p.stop:
		return false
	}
}

func (p *WorkerPool) worker(id int) {
	defer close(p.done[id])
	for {
		select {
		case <-p.stop:
			return
		case task := <-p.queue:
			if p.closed.Load() {
				p.reject(task)
				continue
			}
			p.run(id, task)
		}
	}
}

// run executes one task. A panic is logged and counted; the worker keeps
// going.
func (p *WorkerPool) run(id int, task Task) {
	p.stats.active.Add(1)
	defer func() {
		p.stats.active.Add(-1)
		if r := recover(); r != nil {
			p.stats.failed.Add(1)
			p.log.WithFields(logrus.Fields{
				"worker": id,
				"panic":  fmt.Sprint(r),
			}).Errorf("task failed\n%s", debug.Stack())
			return
		}
		p.stats.completed.Add(1)
	}()
	task.Run()
}

func (p *WorkerPool) reject(task Task) {
	p.stats.rejected.Add(1)
	if r, ok := task.(Rejecter); ok {
		r.Reject()
	}
}

// Shutdown stops accepting work and signals every worker. Tasks already
// running are allowed to finish; queued tasks that never started are
// rejected. With wait set, Shutdown waits up to grace for the workers
// and returns ErrShutdownTimeout if some are still running.
func (p *WorkerPool) Shutdown(wait bool, grace time.Duration) error {
	first := false
	p.stopOnce.Do(func() {
		first = true
		p.closed.Store(true)
		close(p.stop)
	})
	if first {
		// Barrier: submitters blocked in TrySubmit observe stop and leave.
		p.mu.Lock()
		p.mu.Unlock() //nolint:staticcheck
		p.drain()
	}
	if !wait {
		return nil
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	var stuck []int
	for id, done := range p.done {
		select {
		case <-done:
		case <-deadline.C:
			stuck = append(stuck, id)
			// Timer fired once; the rest are checked without waiting.
			for rest := id + 1; rest < len(p.done); rest++ {
				select {
				case <-p.done[rest]:
				default:
					stuck = append(stuck, rest)
				}
			}
			p.log.WithField("workers", stuck).Warn("workers did not exit within grace period")
			return ErrShutdownTimeout
		}
	}
	return nil
}

func (p *WorkerPool) drain() {
	for {
		select {
		case task := <-p.queue:
			p.reject(task)
		default:
			return
		}
	}
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:   p.workers,
		QueueSize: cap(p.queue),
		Queued:    len(p.queue),
		Active:    int(p.stats.active.Load()),
		Submitted: p.stats.submitted.Load(),
		Completed: p.stats.completed.Load(),
		Failed:    p.stats.failed.Load(),
		Rejected:  p.stats.rejected.Load(),
		Shed:      p.stats.shed.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
	Queued    int    `json:"queued"`
	Active    int    `json:"active"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Shed      uint64 `json:"shed"`
}
