// Package control starts and stops long-running loops on operator request.
package control

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var ErrUnknownLoop = errors.New("unknown loop")

// Loop names exposed through the control API
const (
	LoopQuestions    = "questions"
	LoopTransactions = "transactions"
)

type RunFunc func(ctx context.Context) error

// Handle owns one loop goroutine. Stop is cooperative: the loop sees a
// cancelled context and returns after its current step. A restart waits for
// the previous run to exit before the new one begins.
type Handle struct {
	name     string
	run      RunFunc
	precheck func() error
	log      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func NewHandle(name string, run RunFunc, log *zap.Logger) *Handle {
	return &Handle{name: name, run: run, log: log.With(zap.String("loop", name))}
}

// WithPrecheck sets a condition Start must pass before launching.
func (h *Handle) WithPrecheck(fn func() error) *Handle {
	h.precheck = fn
	return h
}

func (h *Handle) Name() string { return h.name }

// Start launches the loop. changed is false when it was already running.
func (h *Handle) Start(parent context.Context) (bool, error) {
	if h.precheck != nil {
		if err := h.precheck(); err != nil {
			return false, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return false, nil
	}

	ctx, cancel := context.WithCancel(parent)
	prev := h.done
	done := make(chan struct{})
	h.cancel, h.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}

		h.log.Info("loop started")
		err := h.run(ctx)

		h.mu.Lock()
		h.lastErr = err
		if h.done == done {
			h.cancel = nil
		}
		h.mu.Unlock()

		switch {
		case err == nil, errors.Is(err, context.Canceled):
			h.log.Info("loop stopped")
		default:
			h.log.Error("loop exited", zap.Error(err))
		}
	}()
	return true, nil
}

// Stop requests the loop to end. changed is false when it was not running.
func (h *Handle) Stop() bool {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (h *Handle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Wait blocks until the most recent run has returned.
func (h *Handle) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Err is the error the last finished run returned.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

type Status struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	LastError string `json:"last_error,omitempty"`
}

func (h *Handle) Status() Status {
	s := Status{Name: h.name, Active: h.IsActive()}
	if err := h.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.LastError = err.Error()
	}
	return s
}

type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

func NewRegistry(handles ...*Handle) *Registry {
	r := &Registry{handles: make(map[string]*Handle, len(handles))}
	for _, h := range handles {
		r.handles[h.name] = h
	}
	return r
}

func (r *Registry) Get(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	if !ok {
		return nil, ErrUnknownLoop
	}
	return h, nil
}

// List returns every handle's status ordered by name.
func (r *Registry) List() []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.Status())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StopAll stops every loop and waits for each to return.
func (r *Registry) StopAll() {
	r.mu.RLock()
	hs := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		hs = append(hs, h)
	}
	r.mu.RUnlock()

	for _, h := range hs {
		h.Stop()
	}
	for _, h := range hs {
		h.Wait()
	}
}
