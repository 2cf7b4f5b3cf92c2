// Package events раздаёт события зафиксированных транзакций внешним получателям.
package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/goroutine"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
)

// Sink это получатель событий. Совпадает с ledger.Publisher.
type Sink interface {
	Publish(ctx context.Context, events []entity.Event)
}

// SinkFunc позволяет использовать функцию как Sink.
type SinkFunc func(ctx context.Context, events []entity.Event)

func (f SinkFunc) Publish(ctx context.Context, events []entity.Event) {
	f(ctx, events)
}

// Fanout передаёт события всем получателям по очереди. Паника одного получателя
// не мешает остальным и не доходит до реестра.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, events []entity.Event) {
	if len(events) == 0 {
		return
	}
	for _, s := range f.sinks {
		s := s
		goroutine.Run("events sink", func() { s.Publish(ctx, events) })
	}
}

// LogSink пишет каждое событие в лог.
func LogSink() Sink {
	return SinkFunc(func(_ context.Context, events []entity.Event) {
		for _, ev := range events {
			logger.WithFields(logrus.Fields{
				"event":   ev.Type,
				"id":      ev.ID,
				"parties": len(ev.Parties),
			}).Info("событие реестра")
		}
	})
}

// MetricsSink передаёт события счётчику.
func MetricsSink(observe func([]entity.Event)) Sink {
	return SinkFunc(func(_ context.Context, events []entity.Event) {
		observe(events)
	})
}
