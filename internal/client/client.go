package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nkootstra/romlink/internal/protocol"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// maxMessageBytes bounds a single WebSocket response: the largest LIST the
// wire format can describe.
const maxMessageBytes = 2 + int64(protocol.MaxRomEntries)*(4+int64(protocol.MaxNameBytes))

// Options configures a Client.
type Options struct {
	Addr        string // host:port, or a ws:// URL for the WebSocket transport
	Transport   string
	DialTimeout time.Duration
	IOTimeout   time.Duration
	MaxAttempts int
	Logger      *zerolog.Logger
}

// DefaultOptions returns options for a TCP client of addr.
func DefaultOptions(addr string) Options {
	return Options{
		Addr:        addr,
		Transport:   TransportTCP,
		DialTimeout: protocol.DialTimeoutMs * time.Millisecond,
		IOTimeout:   protocol.WriteTimeoutMs * time.Millisecond,
		MaxAttempts: protocol.BackoffMaxAttempts,
	}
}

// Client talks to a ROM server. Every request uses its own connection.
type Client struct {
	opts    Options
	log     zerolog.Logger
	backoff func(attempt int) time.Duration
}

// New creates a client. Zero-valued options fall back to the defaults.
func New(opts Options) (*Client, error) {
	def := DefaultOptions(opts.Addr)
	if opts.Addr == "" {
		return nil, errors.New("client: address is required")
	}
	if opts.Transport == "" {
		opts.Transport = def.Transport
	}
	if opts.Transport != TransportTCP && opts.Transport != TransportWebSocket {
		return nil, fmt.Errorf("client: unknown transport %q", opts.Transport)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = def.IOTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		opts:    opts,
		log:     logger.With().Str("component", "client").Str("addr", opts.Addr).Logger(),
		backoff: CalculateBackoff,
	}, nil
}

// List asks the server for its catalog.
func (c *Client) List(ctx context.Context) ([]protocol.RomEntry, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entries, err := RequestList(conn)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Int("roms", len(entries)).Msg("rom list received")
	return entries, nil
}

// Fetch downloads the ROM with the given id. A failed transfer is reported,
// never resumed.
func (c *Client) Fetch(ctx context.Context, id protocol.RomID) ([]byte, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := RequestRom(conn, id)
	if err != nil {
		return nil, fmt.Errorf("fetch rom %d: %w", id, err)
	}
	c.log.Debug().Uint16("rom_id", uint16(id)).Int("bytes", len(data)).Msg("rom received")
	return data, nil
}

// dial connects with retries. Only connection establishment is retried.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.log.Debug().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying dial")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		conn, err := c.dialOnce(ctx)
		if err == nil {
			if err := conn.SetDeadline(time.Now().Add(c.opts.IOTimeout)); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("set deadline: %w", err)
			}
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("dial %s: %d attempts: %w", c.opts.Addr, c.opts.MaxAttempts, lastErr)
}

func (c *Client) dialOnce(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	if c.opts.Transport == TransportWebSocket {
		ws, _, err := websocket.Dial(dialCtx, WebSocketURL(c.opts.Addr), nil)
		if err != nil {
			return nil, err
		}
		ws.SetReadLimit(maxMessageBytes)
		return websocket.NetConn(ctx, ws, websocket.MessageBinary), nil
	}

	var d net.Dialer
	return d.DialContext(dialCtx, "tcp", c.opts.Addr)
}

// WebSocketURL turns addr into the gateway URL. A bare host:port gets the
// ws scheme and the default path; a URL without a path gets the default
// path.
func WebSocketURL(addr string) string {
	if !strings.Contains(addr, "://") {
		return "ws://" + addr + protocol.WebSocketPath
	}
	u, err := url.Parse(addr)
	if err != nil {
		return addr
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = protocol.WebSocketPath
	}
	return u.String()
}
