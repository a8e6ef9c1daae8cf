package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/home-gateway/internal/device"
	"github.com/nerrad567/home-gateway/internal/discovery"
	"github.com/nerrad567/home-gateway/internal/labels"
	"github.com/nerrad567/home-gateway/internal/web"
)

// Renderer executes a named HTML page.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// Reading sources recorded alongside device values.
const (
	sourceGet = "get"
	sourceSet = "set"
)

// handleIndex renders the landing page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, web.PageIndex, nil)
}

// handleListServices renders every known device ordered by (type, label),
// untyped devices last.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	views := sortedViews(s.directory.Snapshot())

	rows := make([]web.ServiceRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, web.ServiceRow{
			ID:    v.ID,
			Label: v.Label,
			Type:  v.Type,
			Addr:  v.Address,
		})
	}

	s.render(w, r, http.StatusOK, web.PageServices, web.ServicesPage{Services: rows})
}

// handleService shows (GET) or sets (POST) the state of one device.
//
// The directory is only read here; errors are rendered as an error page and
// never retried.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.directory.Lookup(id)
	if !ok {
		s.renderError(w, r, id, fmt.Errorf("%w: %q", ErrNotDiscovered, id))
		return
	}

	typ, err := device.ParseType(rec.Type)
	if err != nil {
		s.renderError(w, r, id, err)
		return
	}

	var (
		page string
		data any
	)
	post := r.Method == http.MethodPost

	switch typ {
	case device.TypeRGBW:
		page = web.PageRGBW
		if post {
			data, err = s.setRGBW(r, rec)
		} else {
			data, err = s.getRGBW(r.Context(), rec)
		}
	case device.TypeShade:
		page = web.PageShade
		if post {
			data, err = s.setShade(r, rec)
		} else {
			data, err = s.getShade(r.Context(), rec)
		}
	default:
		err = fmt.Errorf("%w: %q", device.ErrUnknownType, typ)
	}

	if err != nil {
		s.renderError(w, r, id, err)
		return
	}
	s.render(w, r, http.StatusOK, page, data)
}

func (s *Server) getRGBW(ctx context.Context, rec discovery.Record) (web.RGBWPage, error) {
	payload, err := s.devices.Get(ctx, rec.Addr, rec.ID)
	if err != nil {
		return web.RGBWPage{}, err
	}
	c, err := device.DecodeRGBW(payload)
	if err != nil {
		return web.RGBWPage{}, err
	}

	s.record(rec, sourceGet, c.Fields())
	return web.RGBWPage{ID: rec.ID, Name: labels.For(rec.ID), RGB: c.Hex(), W: c.W}, nil
}

func (s *Server) setRGBW(r *http.Request, rec discovery.Record) (web.RGBWPage, error) {
	form, err := postForm(r)
	if err != nil {
		return web.RGBWPage{}, err
	}
	c, err := device.ParseRGBWForm(form)
	if err != nil {
		return web.RGBWPage{}, err
	}
	payload, err := c.MarshalSetpoint()
	if err != nil {
		return web.RGBWPage{}, fmt.Errorf("encoding setpoint: %w", err)
	}
	if err := s.devices.Set(r.Context(), rec.Addr, rec.ID, payload); err != nil {
		return web.RGBWPage{}, err
	}

	s.record(rec, sourceSet, c.Fields())
	return web.RGBWPage{ID: rec.ID, Name: labels.For(rec.ID), RGB: c.Hex(), W: c.W, Submitted: true}, nil
}

func (s *Server) getShade(ctx context.Context, rec discovery.Record) (web.ShadePage, error) {
	payload, err := s.devices.Get(ctx, rec.Addr, rec.ID)
	if err != nil {
		return web.ShadePage{}, err
	}
	sh, err := device.DecodeShade(payload)
	if err != nil {
		return web.ShadePage{}, err
	}

	s.record(rec, sourceGet, sh.Fields())
	return web.ShadePage{ID: rec.ID, Name: labels.For(rec.ID), Pos: sh.Pos}, nil
}

func (s *Server) setShade(r *http.Request, rec discovery.Record) (web.ShadePage, error) {
	form, err := postForm(r)
	if err != nil {
		return web.ShadePage{}, err
	}
	sh, err := device.ParseShadeForm(form)
	if err != nil {
		return web.ShadePage{}, err
	}
	payload, err := sh.MarshalSetpoint()
	if err != nil {
		return web.ShadePage{}, fmt.Errorf("encoding setpoint: %w", err)
	}
	if err := s.devices.Set(r.Context(), rec.Addr, rec.ID, payload); err != nil {
		return web.ShadePage{}, err
	}

	s.record(rec, sourceSet, sh.Fields())
	return web.ShadePage{ID: rec.ID, Name: labels.For(rec.ID), Pos: sh.Pos, Submitted: true}, nil
}

// postForm parses a form-encoded request body.
func postForm(r *http.Request) (url.Values, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrInvalidForm, err)
	}
	return r.PostForm, nil
}

func (s *Server) record(rec discovery.Record, source string, fields map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.WriteReading(rec.ID, rec.Type, source, fields)
}

// render executes page into memory and writes it with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, page, data); err != nil {
		s.logger.Error("page render failed",
			"page", page,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	buf.WriteTo(w)
}

// renderError renders the error page for a failed device request.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, id string, err error) {
	status := statusFor(err)
	s.logger.Warn("device request failed",
		"id", id,
		"method", r.Method,
		"status", status,
		"error", err,
		"request_id", requestID(r.Context()),
	)
	s.render(w, r, status, web.PageError, web.ErrorPage{ID: id, Message: errorMessage(id, err)})
}

// errorMessage returns the operator-facing text for err.
func errorMessage(id string, err error) string {
	switch {
	case errors.Is(err, ErrNotDiscovered):
		return fmt.Sprintf("Could not discover device %s.", id)
	case errors.Is(err, device.ErrUntyped):
		return fmt.Sprintf("Device %s was discovered without a type.", id)
	case errors.Is(err, device.ErrUnknownType):
		return fmt.Sprintf("Device %s has an unsupported type (%v).", id, err)
	case errors.Is(err, device.ErrInvalidForm):
		return fmt.Sprintf("Invalid setpoint for device %s: %v.", id, err)
	default:
		return fmt.Sprintf("Error talking to device %s: %v.", id, err)
	}
}
