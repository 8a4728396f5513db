package worker

import (
	"context"
	"log"
	"os"
	"time"

	"reachloop/outreach"
)

// ExecutorWorker drives the outreach engine on a fixed cadence. The HTTP
// cron trigger runs the same executor; concurrent passes are harmless
// because each enrollment is claimed by version.
type ExecutorWorker struct {
	Executor *outreach.Executor
	Interval time.Duration
	Logger   *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewExecutorWorker(executor *outreach.Executor, interval time.Duration) *ExecutorWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExecutorWorker{
		Executor: executor,
		Interval: interval,
		Logger:   log.New(os.Stdout, "EXECUTOR-WORKER: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

func (w *ExecutorWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		w.Logger.Printf("started, interval %s", w.Interval)

		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.Logger.Println("stopped")
				return
			case <-ticker.C:
				if _, err := w.Executor.ProcessQueue(ctx); err != nil {
					w.Logger.Printf("pass failed: %v", err)
				}
			}
		}
	}()
}

func (w *ExecutorWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}
