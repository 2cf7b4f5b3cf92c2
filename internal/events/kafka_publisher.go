package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/goroutine"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
)

const defaultWriteTimeout = 10 * time.Second

// MessageWriter это часть kafka.Writer, которой пользуется публикатор.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher отправляет события в топик асинхронно: транзакция уже зафиксирована,
// и ошибка брокера не должна её задерживать.
type KafkaPublisher struct {
	writer    MessageWriter
	timeout   time.Duration
	onFailure func()
	sync      bool
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: defaultWriteTimeout}
}

// OnFailure задаёт обработчик неудачной отправки, например счётчик метрик.
func (k *KafkaPublisher) OnFailure(fn func()) *KafkaPublisher {
	k.onFailure = fn
	return k
}

// Publish реализует Sink.
func (k *KafkaPublisher) Publish(_ context.Context, events []entity.Event) {
	msgs, err := Messages(events)
	if err != nil {
		logger.Errorf("kafka: %v", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	if k.sync {
		k.write(msgs)
		return
	}
	goroutine.Go("kafka write", func() { k.write(msgs) })
}

func (k *KafkaPublisher) write(msgs []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		logger.WithFields(logrus.Fields{"count": len(msgs), "error": err.Error()}).Error("kafka: не удалось отправить события")
		if k.onFailure != nil {
			k.onFailure()
		}
	}
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// Messages превращает события в сообщения. Ключом служит первый участник, чтобы события
// одного адреса попадали в одну партицию и сохраняли порядок.
func Messages(events []entity.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("сериализация события %s: %w", ev.Type, err)
		}

		key := ev.Type
		if len(ev.Parties) > 0 {
			key = ev.Parties[0].Hex()
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Time:  ev.At,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(ev.Type)},
				{Key: "event-id", Value: []byte(ev.ID.String())},
			},
		})
	}
	return msgs, nil
}
