package goroutine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = 10 * time.Millisecond
)

type report struct {
	task      string
	recovered any
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []report
}

func (r *recordingReporter) Report(task string, recovered any, stack []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{task: task, recovered: recovered})
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func TestRun_RecoversPanic(t *testing.T) {
	rec := &recordingReporter{}
	g := NewGuard(rec)

	assert.True(t, g.Run("sweep", func() { panic("boom") }))
	require.Len(t, rec.reports, 1)
	assert.Equal(t, report{task: "sweep", recovered: "boom"}, rec.reports[0])

	assert.False(t, g.Run("sweep", func() {}))
	assert.Len(t, rec.reports, 1)
}

func TestGoWithContext_RecoversPanic(t *testing.T) {
	rec := &recordingReporter{}
	g := NewGuard(rec)

	g.GoWithContext(context.Background(), "keeper", func(ctx context.Context) {
		panic("async")
	})

	assert.Eventually(t, func() bool { return rec.count() == 1 }, timeout, tick)
	assert.Equal(t, "keeper", rec.reports[0].task)
}

func TestGo_RunsTask(t *testing.T) {
	rec := &recordingReporter{}
	done := make(chan struct{})

	NewGuard(rec).Go("writer", func() { close(done) })

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("задача не запустилась")
	}
	assert.Zero(t, rec.count())
}

func TestDefault_RecoversWithoutInit(t *testing.T) {
	// без Init логгер отбрасывает записи, важно только что panic перехвачена
	assert.True(t, Run("noop", func() { panic("x") }))
}
