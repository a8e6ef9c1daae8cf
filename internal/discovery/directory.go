package discovery

import (
	"net/netip"
	"sync"
	"time"
)

// Logger defines the logging interface used by the discovery package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Record is one discovered device.
//
// Records are values: every copy handed out by the Directory is independent
// of the Directory's own state.
type Record struct {
	// ID is the resource name the device announced (e.g. "ll").
	ID string `json:"id"`

	// Type is the announced device class, or "" when none was announced.
	Type string `json:"type,omitempty"`

	// Addr is the CoAP endpoint the announcement came from.
	Addr netip.AddrPort `json:"address"`

	// LastSeen is the time of the most recent discovery that returned ID.
	LastSeen time.Time `json:"last_seen"`
}

// HasType reports whether the device announced a type.
func (r Record) HasType() bool {
	return r.Type != ""
}

// Observer is notified of directory changes.
// Callbacks run on the mutating goroutine after the record lock has been
// released, so they may read the directory. They must not mutate it, and
// they delay the next mutation until they return.
type Observer interface {
	DeviceDiscovered(rec Record)
	DeviceExpired(rec Record)
}

// Directory is the in-memory table of currently known devices.
//
// One discovery task writes to it, one expiry task removes from it, and any
// number of request handlers read from it. A single mutex guards the whole
// map; no critical section performs I/O or calls out to observers.
//
// Mutations are serialized with their notifications, so observers see
// events in the order the changes were applied.
//
// All public methods are thread-safe.
type Directory struct {
	records map[string]Record
	mu      sync.RWMutex

	// writeMu is held from a mutation until its observers have returned.
	writeMu sync.Mutex

	observers   []Observer
	observersMu sync.RWMutex

	logger Logger
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		records: make(map[string]Record),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// Subscribe registers an observer for subsequent changes.
func (d *Directory) Subscribe(o Observer) {
	d.observersMu.Lock()
	d.observers = append(d.observers, o)
	d.observersMu.Unlock()
}

// Upsert inserts or replaces the record for id and stamps it with now.
//
// An existing record is replaced wholesale, even when now is older than its
// LastSeen: discovery is the sole source of truth.
func (d *Directory) Upsert(id, typ string, addr netip.AddrPort, now time.Time) {
	rec := Record{
		ID:       id,
		Type:     typ,
		Addr:     addr,
		LastSeen: now,
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	d.records[id] = rec
	d.mu.Unlock()

	d.logger.Debug("device upserted", "id", id, "type", typ, "address", addr.String())

	for _, o := range d.snapshotObservers() {
		o.DeviceDiscovered(rec)
	}
}

// Expire removes every record whose age at now is at least horizon and
// returns the removed records.
//
// A record whose LastSeen lies after now (clock stepped backwards) has an
// age of zero and is retained.
func (d *Directory) Expire(horizon time.Duration, now time.Time) []Record {
	var expired []Record

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	for id, rec := range d.records {
		if age(rec, now) >= horizon {
			expired = append(expired, rec)
			delete(d.records, id)
		}
	}
	d.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}

	observers := d.snapshotObservers()
	for _, rec := range expired {
		d.logger.Debug("device expired", "id", rec.ID, "last_seen", rec.LastSeen)
		for _, o := range observers {
			o.DeviceExpired(rec)
		}
	}

	return expired
}

// Snapshot returns a copy of every current record in unspecified order.
// The returned slice is owned by the caller.
func (d *Directory) Snapshot() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	records := make([]Record, 0, len(d.records))
	for _, rec := range d.records {
		records = append(records, rec)
	}
	return records
}

// Lookup returns a copy of the record for id.
func (d *Directory) Lookup(id string) (Record, bool) {
	d.mu.RLock()
	rec, ok := d.records[id]
	d.mu.RUnlock()
	return rec, ok
}

// Len returns the number of records.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

func (d *Directory) snapshotObservers() []Observer {
	d.observersMu.RLock()
	defer d.observersMu.RUnlock()
	if len(d.observers) == 0 {
		return nil
	}
	return append([]Observer(nil), d.observers...)
}

// age returns how long ago rec was last seen, clamped at zero.
func age(rec Record, now time.Time) time.Duration {
	elapsed := now.Sub(rec.LastSeen)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
