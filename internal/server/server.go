package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nkootstra/romlink/internal/catalog"
	"github.com/nkootstra/romlink/internal/protocol"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Options configures a Server.
type Options struct {
	ReadTimeout  time.Duration // bound on receiving the command frame
	WriteTimeout time.Duration // bound on writing the response
	Sequential   bool          // serve one connection at a time
	Logger       *zerolog.Logger
	Metrics      *Metrics
}

// DefaultOptions returns the hardening timeouts used by `romlink serve`.
func DefaultOptions() Options {
	return Options{
		ReadTimeout:  protocol.ReadTimeoutMs * time.Millisecond,
		WriteTimeout: protocol.WriteTimeoutMs * time.Millisecond,
	}
}

// Server answers one command per connection from a fixed Catalog.
type Server struct {
	catalog *catalog.Catalog
	roms    fs.FS
	opts    Options
	log     zerolog.Logger
	metrics *Metrics
	Events  chan Event

	wg     sync.WaitGroup
	active atomic.Int64
	stale  atomic.Bool
}

// New creates a server for cat. File names resolved from cat are opened in
// roms.
func New(cat *catalog.Catalog, roms fs.FS, opts Options) *Server {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "server").Logger()

	if opts.Metrics != nil {
		opts.Metrics.setCatalogSize(cat.Len())
	}

	return &Server{
		catalog: cat,
		roms:    roms,
		opts:    opts,
		log:     logger,
		metrics: opts.Metrics,
		Events:  make(chan Event, 100),
	}
}

// Catalog returns the snapshot the server was built with.
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Stale reports whether the ROM directory changed after the catalog was
// built. Only set while WatchDir runs.
func (s *Server) Stale() bool {
	return s.stale.Load()
}

// ActiveConnections reports the number of exchanges in progress.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

func (s *Server) emit(ev Event) {
	select {
	case s.Events <- ev:
	default:
		// Nobody is draining events; dropping keeps the accept loop moving.
	}
}

// Serve accepts connections on ln until ctx is cancelled or ln is closed.
// Each connection carries exactly one exchange. Errors on a single
// connection are logged and never stop the loop. Failed accepts are retried
// after a delay capped at one second. Serve closes ln and waits for
// in-flight exchanges before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Int("roms", s.catalog.Len()).
		Bool("sequential", s.opts.Sequential).
		Msg("rom server listening")
	s.emit(Event{Type: EventListening, Addr: ln.Addr().String()})

	var retryDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			// Out of descriptors and similar: back off and keep accepting.
			retryDelay = nextAcceptDelay(retryDelay)
			s.log.Warn().Err(err).Dur("retry_in", retryDelay).Msg("accept failed")
			if !sleepCtx(ctx, retryDelay) {
				s.wg.Wait()
				return nil
			}
			continue
		}
		retryDelay = 0

		if s.opts.Sequential {
			s.ServeConn(ctx, conn)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(prev*2, maxAcceptDelay)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ServeConn runs one exchange on an accepted TCP connection and closes it.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) Exchange {
	return s.serveConn(ctx, conn, TransportTCP, conn.RemoteAddr().String())
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, transport, remote string) Exchange {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	s.active.Add(1)
	if s.metrics != nil {
		s.metrics.connectionOpened()
	}

	ex := Exchange{
		ID:        uuid.NewString(),
		Remote:    remote,
		Transport: transport,
		Time:      time.Now(),
	}
	ex.Bytes, ex.Err = s.exchange(conn, &ex)
	_ = conn.Close()
	ex.Duration = time.Since(ex.Time)

	s.active.Add(-1)
	if s.metrics != nil {
		s.metrics.connectionClosed()
	}
	s.record(ex)
	return ex
}

// exchange is the per-connection state machine: await the command, decode,
// dispatch, write. Any failure before the write aborts with nothing sent.
func (s *Server) exchange(conn net.Conn, ex *Exchange) (int, error) {
	if s.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	cmd, err := protocol.ReadCommand(conn)
	ex.Opcode = cmd.Opcode
	if err != nil {
		return 0, err
	}

	resp, err := s.dispatch(cmd, ex)
	if err != nil {
		return 0, err
	}

	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	n, err := conn.Write(resp)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (s *Server) dispatch(cmd protocol.Command, ex *Exchange) ([]byte, error) {
	switch cmd.Opcode {
	case protocol.OpList:
		return protocol.EncodeRomList(s.catalog.List())

	case protocol.OpFetch:
		ex.RomID = cmd.RomID()
		name, err := s.catalog.Resolve(cmd.RomID())
		if err != nil {
			return nil, err
		}
		ex.RomName = name
		data, err := s.readRom(name)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeRomPayload(data)

	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnsupportedCommand, cmd.Opcode)
	}
}

// readRom loads a ROM, refusing files that do not fit the 16-bit length
// field. The size is checked before and after reading since the file may
// change underneath us.
func (s *Server) readRom(name string) ([]byte, error) {
	f, err := s.roms.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open rom %q: %w", name, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > protocol.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %q is %d bytes", protocol.ErrPayloadTooLarge, name, info.Size())
	}

	data, err := io.ReadAll(io.LimitReader(f, protocol.MaxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read rom %q: %w", name, err)
	}
	if len(data) > protocol.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", protocol.ErrPayloadTooLarge, name, protocol.MaxPayloadBytes)
	}
	return data, nil
}

func (s *Server) record(ex Exchange) {
	if s.metrics != nil {
		s.metrics.observe(ex)
	}

	event := s.log.Info()
	switch ex.Outcome() {
	case OutcomeOK:
	case OutcomeMalformed, OutcomeUnsupported, OutcomeUnknownRom, OutcomeTimeout:
		event = s.log.Warn()
	default:
		event = s.log.Error()
	}
	event = event.
		Str("conn_id", ex.ID).
		Str("remote", ex.Remote).
		Str("transport", ex.Transport).
		Str("opcode", ex.Opcode.String()).
		Str("outcome", ex.Outcome()).
		Int("bytes", ex.Bytes).
		Dur("duration", ex.Duration)
	if ex.Opcode == protocol.OpFetch {
		event = event.Uint16("rom_id", uint16(ex.RomID)).Str("rom", ex.RomName)
	}
	if ex.Err != nil {
		event = event.Err(ex.Err)
	}
	event.Msg("exchange")

	exCopy := ex
	s.emit(Event{Type: EventExchange, Exchange: &exCopy})
}
