package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/logger"
)

// Reporter получает перехваченную panic фоновой задачи.
type Reporter interface {
	Report(task string, recovered any, stack []byte)
}

// ReporterFunc адаптирует функцию к Reporter.
type ReporterFunc func(task string, recovered any, stack []byte)

func (f ReporterFunc) Report(task string, recovered any, stack []byte) {
	f(task, recovered, stack)
}

// Guard запускает задачи так, что panic одной задачи не роняет процесс.
type Guard struct {
	reporter Reporter
}

func NewGuard(reporter Reporter) *Guard {
	return &Guard{reporter: reporter}
}

// Go запускает fn в отдельной горутине.
func (g *Guard) Go(task string, fn func()) {
	go func() {
		defer g.recover(task)
		fn()
	}()
}

// GoWithContext запускает fn(ctx) в отдельной горутине.
func (g *Guard) GoWithContext(ctx context.Context, task string, fn func(context.Context)) {
	go func() {
		defer g.recover(task)
		fn(ctx)
	}()
}

// Run выполняет fn в текущей горутине. Возвращает true, если была panic.
func (g *Guard) Run(task string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			g.reporter.Report(task, r, debug.Stack())
		}
	}()
	fn()
	return false
}

func (g *Guard) recover(task string) {
	if r := recover(); r != nil {
		g.reporter.Report(task, r, debug.Stack())
	}
}

// logReporter пишет panic в общий logrus логгер.
var logReporter = ReporterFunc(func(task string, recovered any, stack []byte) {
	logger.WithFields(logrus.Fields{
		"task":  task,
		"panic": recovered,
		"stack": string(stack),
	}).Error("goroutine: panic в фоновой задаче")
})

// Default пишет panic в logrus.
var Default = NewGuard(logReporter)

func Go(task string, fn func()) {
	Default.Go(task, fn)
}

func GoWithContext(ctx context.Context, task string, fn func(context.Context)) {
	Default.GoWithContext(ctx, task, fn)
}

func Run(task string, fn func()) bool {
	return Default.Run(task, fn)
}
