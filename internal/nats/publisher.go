package natsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject carries every event craftd emits.
const DefaultSubject = "craftd.events"

var (
	ErrNotConnected = errors.New("nats not connected")
)

// Event is the envelope published after a route is served.
type Event struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Route   string          `json:"route"`
	Time    int64           `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current unix time.
func NewEvent(kind, route string, payload []byte) Event {
	return Event{
		ID:      uuid.NewString(),
		Event:   kind,
		Route:   route,
		Time:    time.Now().Unix(),
		Payload: payload,
	}
}

type Publisher struct {
	nc  *nats.Conn
	url string
	log *zap.Logger
}

func connect(url, name string, log *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	return nats.Connect(url, opts...)
}

func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := connect(url, "craftd", log)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return &Publisher{nc: nc, url: url, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	return p.nc.Publish(subject, payload)
}

// PublishEvent encodes ev and publishes it on subject.
func (p *Publisher) PublishEvent(ctx context.Context, subject string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.Publish(ctx, subject, b)
}

func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
