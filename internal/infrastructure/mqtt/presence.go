package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/home-gateway/internal/discovery"
)

// defaultPresenceQueue bounds the number of presence updates waiting for the broker.
const defaultPresenceQueue = 256

// RetainedPublisher is the subset of Client used by Presence.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// PresenceMessage is the retained JSON body published per device.
type PresenceMessage struct {
	ID       string    `json:"id"`
	Type     string    `json:"type,omitempty"`
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
	Present  bool      `json:"present"`
}

type presenceUpdate struct {
	topic   string
	payload []byte
}

// Presence mirrors directory changes onto retained MQTT topics.
//
// It implements discovery.Observer. Callbacks only enqueue and Run performs
// the broker round-trips. When the queue is full the update is dropped with
// a warning.
type Presence struct {
	pub    RetainedPublisher
	queue  chan presenceUpdate
	logger Logger
}

// NewPresence creates a presence publisher writing through pub.
func NewPresence(pub RetainedPublisher) *Presence {
	return &Presence{
		pub:   pub,
		queue: make(chan presenceUpdate, defaultPresenceQueue),
	}
}

// SetLogger sets the logger for publish failures.
func (p *Presence) SetLogger(logger Logger) {
	p.logger = logger
}

// DeviceDiscovered publishes rec as present.
func (p *Presence) DeviceDiscovered(rec discovery.Record) {
	p.enqueue(rec, true)
}

// DeviceExpired publishes rec as gone.
func (p *Presence) DeviceExpired(rec discovery.Record) {
	p.enqueue(rec, false)
}

// Run publishes queued updates until ctx is cancelled.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-p.queue:
			if err := p.pub.PublishRetained(u.topic, u.payload); err != nil && p.logger != nil {
				p.logger.Warn("presence publish failed", "topic", u.topic, "error", err)
			}
		}
	}
}

func (p *Presence) enqueue(rec discovery.Record, present bool) {
	payload, err := BuildPresencePayload(rec, present)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("encoding presence", "device_id", rec.ID, "error", err)
		}
		return
	}

	select {
	case p.queue <- presenceUpdate{topic: Topics{}.DevicePresence(rec.ID), payload: payload}:
	default:
		if p.logger != nil {
			p.logger.Warn("presence queue full, dropping update", "device_id", rec.ID)
		}
	}
}

// BuildPresencePayload encodes the retained presence message for rec.
func BuildPresencePayload(rec discovery.Record, present bool) ([]byte, error) {
	data, err := json.Marshal(PresenceMessage{
		ID:       rec.ID,
		Type:     rec.Type,
		Address:  rec.Addr.String(),
		LastSeen: rec.LastSeen.UTC(),
		Present:  present,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling presence: %w", err)
	}
	return data, nil
}
