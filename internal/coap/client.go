package coap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"
)

// Default transport settings.
const (
	DefaultMulticastAddress = "224.0.1.187:5683"
	DefaultDiscoveryPath    = "/.well-known/core"
	DefaultDiscoveryWindow  = 3 * time.Second
)

// Logger defines the logging interface used by the coap package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds CoAP transport settings.
type Config struct {
	// MulticastAddress is the group queried during discovery.
	MulticastAddress string

	// DiscoveryPath is the resource requested from every node.
	DiscoveryPath string

	// DiscoveryWindow is how long multicast responses are collected.
	DiscoveryWindow time.Duration

	// RequestTimeout bounds each unicast exchange. Zero leaves only the
	// caller's context.
	RequestTimeout time.Duration
}

// Service is one resource announced during discovery.
type Service struct {
	ID   string
	Type string // rt attribute, "" when absent
	Addr netip.AddrPort
}

// Client talks CoAP over UDP to devices on the local link.
//
// Every unicast exchange uses its own connection, so a Client is safe for
// concurrent use and holds no sockets between calls.
type Client struct {
	cfg    Config
	logger Logger
}

// NewClient creates a CoAP client. Zero-valued settings take their defaults.
func NewClient(cfg Config) *Client {
	if cfg.MulticastAddress == "" {
		cfg.MulticastAddress = DefaultMulticastAddress
	}
	if cfg.DiscoveryPath == "" {
		cfg.DiscoveryPath = DefaultDiscoveryPath
	}
	if cfg.DiscoveryWindow <= 0 {
		cfg.DiscoveryWindow = DefaultDiscoveryWindow
	}
	return &Client{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Discover multicasts a GET for the discovery resource and collects
// responses for the discovery window. It applies no id or type filter.
//
// Services are returned in the order their responses arrived. Responses
// that cannot be parsed are logged and skipped.
//
// Returns:
//   - []Service: every announced resource
//   - error: ErrDiscovery if the query could not be sent, or ctx.Err()
func (c *Client) Discover(ctx context.Context) ([]Service, error) {
	network := "udp4"
	if host, _, err := net.SplitHostPort(c.cfg.MulticastAddress); err == nil {
		if ip, err := netip.ParseAddr(host); err == nil && ip.Is6() {
			network = "udp6"
		}
	}

	l, err := coapNet.NewListenUDP(network, "")
	if err != nil {
		return nil, fmt.Errorf("%w: listen: %v", ErrDiscovery, err)
	}
	defer l.Close()

	s := udp.NewServer()
	defer s.Stop()
	go func() {
		_ = s.Serve(l)
	}()

	windowCtx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryWindow)
	defer cancel()

	var (
		mu       sync.Mutex
		services []Service
	)
	err = s.Discover(windowCtx, c.cfg.MulticastAddress, c.cfg.DiscoveryPath, func(cc *client.Conn, resp *pool.Message) {
		from, ok := addrPortOf(cc.RemoteAddr())
		if !ok {
			return
		}
		body, err := resp.ReadBody()
		if err != nil {
			c.logger.Debug("discovery response unreadable", "from", from.String(), "error", err)
			return
		}
		links, err := ParseLinkFormat(body)
		if err != nil {
			c.logger.Debug("discovery response skipped", "from", from.String(), "error", err)
			return
		}

		found := servicesFromLinks(links, from)
		mu.Lock()
		services = append(services, found...)
		mu.Unlock()
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	mu.Lock()
	defer mu.Unlock()
	return services, nil
}

// Get fetches resource id from the device at addr and returns its CBOR
// payload.
//
// Returns:
//   - []byte: the CBOR-encoded body
//   - error: ErrTransport, ErrMissingContentType or ErrUnexpectedContentType
func (c *Client) Get(ctx context.Context, addr netip.AddrPort, id string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn, err := udp.Dial(addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}
	defer conn.Close()

	resp, err := conn.Get(ctx, "/"+id)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s/%s: %v", ErrTransport, addr, id, err)
	}
	if resp.Code() != codes.Content {
		return nil, fmt.Errorf("%w: GET %s/%s: response code %v", ErrTransport, addr, id, resp.Code())
	}

	payload, err := cborBody(resp)
	if err != nil {
		return nil, fmt.Errorf("GET %s/%s: %w", addr, id, err)
	}

	c.logger.Debug("coap get", "address", addr.String(), "id", id, "bytes", len(payload))
	return payload, nil
}

// Set writes a CBOR payload to resource id on the device at addr using PUT.
func (c *Client) Set(ctx context.Context, addr netip.AddrPort, id string, payload []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn, err := udp.Dial(addr.String())
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}
	defer conn.Close()

	resp, err := conn.Put(ctx, "/"+id, message.AppCBOR, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: PUT %s/%s: %v", ErrTransport, addr, id, err)
	}
	if !isSuccess(resp.Code()) {
		return fmt.Errorf("%w: PUT %s/%s: response code %v", ErrTransport, addr, id, resp.Code())
	}

	c.logger.Debug("coap set", "address", addr.String(), "id", id, "bytes", len(payload))
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// cborBody returns the body of resp if its Content-Format is CBOR.
func cborBody(resp *pool.Message) ([]byte, error) {
	format, err := resp.ContentFormat()
	if err != nil {
		return nil, ErrMissingContentType
	}
	if format != message.AppCBOR {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedContentType, format)
	}

	body, err := resp.ReadBody()
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}
	return body, nil
}

// servicesFromLinks turns discovered links into services hosted at from.
// The discovery resource itself and nested paths are not services.
func servicesFromLinks(links []Link, from netip.AddrPort) []Service {
	services := make([]Service, 0, len(links))
	for _, l := range links {
		id := strings.TrimPrefix(l.Target, "/")
		if id == "" || strings.HasPrefix(id, ".well-known") || strings.Contains(id, "/") {
			continue
		}
		services = append(services, Service{
			ID:   id,
			Type: l.ResourceType(),
			Addr: from,
		})
	}
	return services
}

func addrPortOf(a net.Addr) (netip.AddrPort, bool) {
	udpAddr, ok := a.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	ap := udpAddr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), true
}

// isSuccess reports whether code is in the 2.xx class.
func isSuccess(code codes.Code) bool {
	return code>>5 == 2
}
