package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/home-gateway/internal/discovery"
)

type publishedMessage struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publishedMessage
	err  error
	sent chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan struct{}, 16)}
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, publishedMessage{topic: topic, payload: payload})
	err := f.err
	f.mu.Unlock()
	f.sent <- struct{}{}
	return err
}

func (f *fakePublisher) wait(t *testing.T, n int) []publishedMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for publish %d of %d", i+1, n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.msgs...)
}

type warnLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *warnLogger) Info(string, ...any)  {}
func (l *warnLogger) Error(string, ...any) {}
func (l *warnLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func testRecord() discovery.Record {
	return discovery.Record{
		ID:       "ll",
		Type:     "rgbw",
		Addr:     netip.MustParseAddrPort("[fd00::12]:5683"),
		LastSeen: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBuildPresencePayload(t *testing.T) {
	data, err := BuildPresencePayload(testRecord(), true)
	if err != nil {
		t.Fatalf("BuildPresencePayload() error = %v", err)
	}

	var got PresenceMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ID != "ll" || got.Type != "rgbw" || got.Address != "[fd00::12]:5683" || !got.Present {
		t.Errorf("payload = %+v", got)
	}
	if !got.LastSeen.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("LastSeen = %v", got.LastSeen)
	}
}

func TestBuildPresencePayload_Untyped(t *testing.T) {
	rec := testRecord()
	rec.Type = ""

	data, err := BuildPresencePayload(rec, false)
	if err != nil {
		t.Fatalf("BuildPresencePayload() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := raw["type"]; ok {
		t.Errorf("untyped payload carries a type: %s", data)
	}
	if raw["present"] != false {
		t.Errorf("present = %v, want false", raw["present"])
	}
}

func TestPresence_PublishesDirectoryEvents(t *testing.T) {
	pub := newFakePublisher()
	presence := NewPresence(pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go presence.Run(ctx)

	dir := discovery.NewDirectory()
	dir.Subscribe(presence)

	rec := testRecord()
	dir.Upsert(rec.ID, rec.Type, rec.Addr, rec.LastSeen)
	dir.Expire(time.Hour, rec.LastSeen.Add(2*time.Hour))

	msgs := pub.wait(t, 2)
	for i, wantPresent := range []bool{true, false} {
		if msgs[i].topic != "homegw/device/ll" {
			t.Errorf("msgs[%d].topic = %q", i, msgs[i].topic)
		}
		var got PresenceMessage
		if err := json.Unmarshal(msgs[i].payload, &got); err != nil {
			t.Fatalf("msgs[%d] is not JSON: %v", i, err)
		}
		if got.Present != wantPresent {
			t.Errorf("msgs[%d].Present = %v, want %v", i, got.Present, wantPresent)
		}
	}
}

func TestPresence_PublishFailureLogged(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("broker down")
	logger := &warnLogger{}

	presence := NewPresence(pub)
	presence.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go presence.Run(ctx)

	presence.DeviceDiscovered(testRecord())
	pub.wait(t, 1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		logger.mu.Lock()
		warns := logger.warns
		logger.mu.Unlock()
		if warns == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("publish failure was not logged")
}

func TestPresence_FullQueueDrops(t *testing.T) {
	logger := &warnLogger{}
	presence := NewPresence(newFakePublisher())
	presence.SetLogger(logger)

	// Run is not started, so nothing drains the queue.
	for i := 0; i < defaultPresenceQueue+3; i++ {
		presence.DeviceDiscovered(testRecord())
	}

	if logger.warns != 3 {
		t.Errorf("warns = %d, want 3 dropped updates", logger.warns)
	}
	if len(presence.queue) != defaultPresenceQueue {
		t.Errorf("queue length = %d, want %d", len(presence.queue), defaultPresenceQueue)
	}
}
