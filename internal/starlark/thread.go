package starlark

import (
	"context"
	"log/slog"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds the computation a single rule invocation may perform.
const DefaultMaxSteps uint64 = 50_000_000

// NewThread creates a Starlark thread whose print() output goes to logger at debug level.
// A maxSteps of 0 leaves the thread unbounded.
func NewThread(name string, logger *slog.Logger, maxSteps uint64) *starlark.Thread {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	thread := &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			logger.Debug("starlark print", slog.String("thread", t.Name), slog.String("msg", msg))
		},
	}
	if maxSteps > 0 {
		thread.SetMaxExecutionSteps(maxSteps)
	}
	return thread
}

// bindContext cancels thread when ctx is done. The returned stop function must be
// called once the thread has finished.
func bindContext(ctx context.Context, thread *starlark.Thread) (stop func()) {
	thread.SetLocal(goContextKey, ctx)
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

const goContextKey = "themis.context"

// contextOf returns the Go context bound to thread, or context.Background.
func contextOf(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(goContextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}
