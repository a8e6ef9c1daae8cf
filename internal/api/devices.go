package api

import (
	"cmp"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/home-gateway/internal/discovery"
	"github.com/nerrad567/home-gateway/internal/labels"
)

// DeviceView is the JSON form of a directory record.
type DeviceView struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     string    `json:"type,omitempty"`
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
}

// NewDeviceView builds the presentation of rec.
func NewDeviceView(rec discovery.Record) DeviceView {
	return DeviceView{
		ID:       rec.ID,
		Label:    labels.For(rec.ID),
		Type:     rec.Type,
		Address:  rec.Addr.String(),
		LastSeen: rec.LastSeen,
	}
}

// sortedViews orders records by (type, label) with untyped devices last.
// The id breaks remaining ties so the order is stable across requests.
func sortedViews(records []discovery.Record) []DeviceView {
	views := make([]DeviceView, 0, len(records))
	for _, rec := range records {
		views = append(views, NewDeviceView(rec))
	}

	slices.SortFunc(views, func(a, b DeviceView) int {
		if (a.Type == "") != (b.Type == "") {
			if a.Type == "" {
				return 1
			}
			return -1
		}
		return cmp.Or(
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Label, b.Label),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return views
}

// handleListDevices returns the directory as JSON in list-page order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	views := sortedViews(s.directory.Snapshot())
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one directory record as JSON.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.directory.Lookup(id)
	if !ok {
		writeNotFound(w, "device not discovered")
		return
	}
	writeJSON(w, http.StatusOK, NewDeviceView(rec))
}
