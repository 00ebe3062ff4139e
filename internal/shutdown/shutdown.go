// Package shutdown coordinates ordered teardown of the running Supervisor
// on SIGINT/SIGTERM, grounded on signal_handler_service.py.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Task is one named teardown step.
type Task struct {
	Name     string
	Handler  func() error
	Timeout  time.Duration
	Critical bool
}

// Coordinator registers shutdown tasks and runs them in registration order
// when a signal arrives or Trigger is called manually.
type Coordinator struct {
	log *slog.Logger

	mu       sync.Mutex
	tasks    []Task
	inFlight bool
}

func New(log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{log: log}
}

// Register appends a shutdown task. timeout defaults to 2s if zero.
func (c *Coordinator) Register(name string, handler func() error, timeout time.Duration, critical bool) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, Task{Name: name, Handler: handler, Timeout: timeout, Critical: critical})
}

// ClearTasks removes all registered tasks.
func (c *Coordinator) ClearTasks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = nil
}

// Wait blocks until SIGINT/SIGTERM is received, then runs every registered
// shutdown task in order.
func (c *Coordinator) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	c.log.Info("shutdown signal received")
	c.runTasks()
}

// Trigger runs every registered shutdown task without waiting for a signal.
func (c *Coordinator) Trigger() {
	c.runTasks()
}

// IsShuttingDown reports whether a shutdown run is currently in progress.
func (c *Coordinator) IsShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Coordinator) runTasks() {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	tasks := append([]Task(nil), c.tasks...)
	c.mu.Unlock()

	for _, t := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logTaskFailure(t, fmt.Errorf("panic: %v", r))
				}
			}()
			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("panic: %v", r)
					}
				}()
				done <- t.Handler()
			}()
			select {
			case err := <-done:
				if err != nil {
					c.logTaskFailure(t, err)
				}
			case <-time.After(t.Timeout):
				c.logTaskFailure(t, fmt.Errorf("timed out after %s", t.Timeout))
			}
		}()
	}

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Coordinator) logTaskFailure(t Task, err error) {
	level := slog.LevelDebug
	if t.Critical {
		level = slog.LevelError
	}
	c.log.Log(context.Background(), level, "shutdown task failed", slog.String("task", t.Name), slog.Any("error", err))
}

// Exit performs os.Exit(code) immediately, with no grace period, for
// callers that want exit-on-signal semantics.
func Exit(code int) {
	os.Exit(code)
}
