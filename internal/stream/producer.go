package stream

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer buffers events through an inbox channel and writes them to Kafka
// from a single goroutine. A nil *Producer is a valid no-op, so callers
// never need to guard on whether event publishing is configured.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	if p == nil {
		return
	}
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				if err := p.w.WriteMessages(context.Background(), m); err != nil {
					log.Printf("stream: write message: %v", err)
				}
			}
		}
	}()
}

func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				log.Printf("stream: flush message: %v", err)
			}
		default:
			_ = p.w.Close()
			return
		}
	}
}

// Publish enqueues without blocking the request path; if the inbox is full
// the event is dropped with a log line rather than stalling a checkout.
func (p *Producer) Publish(key, value []byte) {
	if p == nil {
		return
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now()}:
	default:
		log.Printf("stream: inbox full, dropping event")
	}
}

func (p *Producer) Close() {
	if p == nil {
		return
	}
	close(p.inbox)
	<-p.closeCh
}
