package natsclient

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subscriber delivers decoded events from a subject to a callback.
type Subscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
	log *zap.Logger
}

func NewSubscriber(url string, log *zap.Logger) (*Subscriber, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := connect(url, "craftctl", log)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return &Subscriber{nc: nc, log: log}, nil
}

// Subscribe registers fn for events on subject. Messages that do not
// decode as an Event are logged and dropped.
func (s *Subscriber) Subscribe(subject string, fn func(Event)) error {
	if s.nc == nil || s.nc.IsClosed() {
		return ErrNotConnected
	}
	sub, err := s.nc.Subscribe(subject, func(m *nats.Msg) {
		ev, err := DecodeEvent(m.Data)
		if err != nil {
			s.log.Warn("dropping event", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		fn(ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.sub = sub
	return nil
}

func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}

// DecodeEvent parses a published event payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Event == "" {
		return Event{}, fmt.Errorf("decode event: missing event kind")
	}
	return ev, nil
}
