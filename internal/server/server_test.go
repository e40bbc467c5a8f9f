package server

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkootstra/romlink/internal/catalog"
	"github.com/nkootstra/romlink/internal/protocol"
)

func testLogger(t *testing.T) *zerolog.Logger {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return &logger
}

func newTestServer(t *testing.T, fsys fs.FS, opts Options) *Server {
	t.Helper()
	cat, err := catalog.Load(fsys, catalog.Filter{})
	require.NoError(t, err)
	opts.Logger = testLogger(t)
	return New(cat, fsys, opts)
}

// startServer runs srv on a loopback listener until the test ends.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

func roundTrip(t *testing.T, addr string, req []byte) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(req)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return resp
}

func waitExchange(t *testing.T, srv *Server) Exchange {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-srv.Events:
			if ev.Type == EventExchange {
				return *ev.Exchange
			}
		case <-timeout:
			t.Fatal("timed out waiting for exchange")
			return Exchange{}
		}
	}
}

func scenarioFS() fstest.MapFS {
	// Prefixes pin the lexical order so pong gets id 0.
	return fstest.MapFS{
		"0-pong.ch8":     {Data: []byte{0x00, 0xE0}},
		"1-invaders.ch8": {Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}
}

func TestServer_List(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, []byte{0x00, 0x00, 0x00, 0x01})

	want, err := protocol.EncodeRomList([]protocol.RomEntry{
		{ID: 0, Name: "0-pong.ch8"},
		{ID: 1, Name: "1-invaders.ch8"},
	})
	require.NoError(t, err)
	assert.Equal(t, want, resp)

	ex := waitExchange(t, srv)
	assert.Equal(t, protocol.OpList, ex.Opcode)
	assert.Equal(t, OutcomeOK, ex.Outcome())
	assert.Equal(t, len(want), ex.Bytes)
	assert.Equal(t, TransportTCP, ex.Transport)
	assert.NotEmpty(t, ex.ID)
}

func TestServer_ListScenarioBytes(t *testing.T) {
	cat, err := catalog.Build([]string{"pong.ch8", "invaders.ch8"})
	require.NoError(t, err)
	srv := New(cat, fstest.MapFS{}, Options{Logger: testLogger(t)})
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, []byte{0x00, 0x00, 0x00, 0x01})

	want := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x08}
	want = append(want, "pong.ch8"...)
	want = append(want, 0x00, 0x01, 0x00, 0x0C)
	want = append(want, "invaders.ch8"...)
	assert.Equal(t, want, resp)
}

func TestServer_Fetch(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, []byte{0x00, 0x01, 0x00, 0x02})
	assert.Equal(t, []byte{0x00, 0x04, 0xDE, 0xAD, 0xBE, 0xEF}, resp)

	ex := waitExchange(t, srv)
	assert.Equal(t, protocol.OpFetch, ex.Opcode)
	assert.Equal(t, protocol.RomID(1), ex.RomID)
	assert.Equal(t, "1-invaders.ch8", ex.RomName)
	assert.Equal(t, OutcomeOK, ex.Outcome())
}

func TestServer_FetchEmptyFile(t *testing.T) {
	srv := newTestServer(t, fstest.MapFS{"empty.ch8": {Data: nil}}, DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, protocol.EncodeCommand(protocol.OpFetch, 0))
	assert.Equal(t, []byte{0x00, 0x00}, resp)
}

func TestServer_FetchUnknownRomClosesWithoutResponse(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, protocol.EncodeCommand(protocol.OpFetch, 2))
	assert.Empty(t, resp)

	ex := waitExchange(t, srv)
	assert.Equal(t, OutcomeUnknownRom, ex.Outcome())
	assert.ErrorIs(t, ex.Err, protocol.ErrUnknownRom)
	assert.Zero(t, ex.Bytes)
}

func TestServer_UnsupportedOpcodeClosesWithoutResponse(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, []byte{0x00, 0x00, 0x00, 0x03})
	assert.Empty(t, resp)

	ex := waitExchange(t, srv)
	assert.Equal(t, OutcomeUnsupported, ex.Outcome())
	assert.Equal(t, protocol.Opcode(0x03), ex.Opcode)
}

func TestServer_PartialFrameIsMalformed(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	addr := startServer(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x00, 0x01, 0x00})
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, resp)

	ex := waitExchange(t, srv)
	assert.Equal(t, OutcomeMalformed, ex.Outcome())
	assert.ErrorIs(t, ex.Err, protocol.ErrMalformedFrame)
}

func TestServer_PayloadTooLarge(t *testing.T) {
	fsys := fstest.MapFS{
		"big.bin":   {Data: make([]byte, protocol.MaxPayloadBytes+1)},
		"limit.bin": {Data: make([]byte, protocol.MaxPayloadBytes)},
	}
	srv := newTestServer(t, fsys, DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, protocol.EncodeCommand(protocol.OpFetch, 0))
	assert.Empty(t, resp)
	ex := waitExchange(t, srv)
	assert.Equal(t, OutcomeTooLarge, ex.Outcome())

	resp = roundTrip(t, addr, protocol.EncodeCommand(protocol.OpFetch, 1))
	require.Len(t, resp, protocol.MaxPayloadBytes+2)
	assert.Equal(t, []byte{0xFF, 0xFF}, resp[:2])
}

func TestServer_ReadTimeout(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), Options{ReadTimeout: 100 * time.Millisecond})
	addr := startServer(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, resp)

	ex := waitExchange(t, srv)
	assert.Equal(t, OutcomeTimeout, ex.Outcome())
}

func TestServer_SlowClientDoesNotBlockOthers(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), Options{ReadTimeout: 2 * time.Second})
	addr := startServer(t, srv)

	idle, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer idle.Close()

	start := time.Now()
	resp := roundTrip(t, addr, protocol.NewListCommand().Encode())
	assert.NotEmpty(t, resp)
	assert.Less(t, time.Since(start), time.Second)
}

func TestServer_SequentialServesConsecutiveConnections(t *testing.T) {
	opts := DefaultOptions()
	opts.Sequential = true
	srv := newTestServer(t, scenarioFS(), opts)
	addr := startServer(t, srv)

	for i := 0; i < 3; i++ {
		resp := roundTrip(t, addr, protocol.NewFetchCommand(0).Encode())
		assert.Equal(t, []byte{0x00, 0x02, 0x00, 0xE0}, resp)
	}
}

func TestServer_KeepsAcceptingAfterErrors(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	addr := startServer(t, srv)

	assert.Empty(t, roundTrip(t, addr, []byte{0x00, 0x09, 0x00, 0x02}))
	assert.Empty(t, roundTrip(t, addr, []byte{0x00, 0x00, 0x00, 0x7F}))
	assert.Equal(t,
		[]byte{0x00, 0x04, 0xDE, 0xAD, 0xBE, 0xEF},
		roundTrip(t, addr, protocol.NewFetchCommand(1).Encode()),
	)
}

// flakyListener fails Accept with EMFILE until failures runs out.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}
	}
	return l.Listener.Accept()
}

func TestServer_KeepsAcceptingAfterAcceptError(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln := &flakyListener{Listener: inner}
	ln.failures.Store(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp := roundTrip(t, inner.Addr().String(), protocol.NewFetchCommand(0).Encode())
	assert.Equal(t, []byte{0x00, 0x02, 0x00, 0xE0}, resp)

	select {
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNextAcceptDelay(t *testing.T) {
	d := nextAcceptDelay(0)
	assert.Equal(t, minAcceptDelay, d)
	for i := 0; i < 20; i++ {
		d = nextAcceptDelay(d)
	}
	assert.Equal(t, maxAcceptDelay, d)
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	srv := newTestServer(t, scenarioFS(), DefaultOptions())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, err = net.Dial("tcp", ln.Addr().String())
	assert.Error(t, err)
}

func TestServer_Metrics(t *testing.T) {
	metrics := NewMetrics()
	opts := DefaultOptions()
	opts.Metrics = metrics
	srv := newTestServer(t, scenarioFS(), opts)
	addr := startServer(t, srv)

	roundTrip(t, addr, protocol.NewListCommand().Encode())
	waitExchange(t, srv)
	roundTrip(t, addr, protocol.NewFetchCommand(5).Encode())
	waitExchange(t, srv)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exchanges.WithLabelValues("LIST", TransportTCP, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exchanges.WithLabelValues("FETCH", TransportTCP, OutcomeUnknownRom)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.catalogSize))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.activeConns))
}

func TestServer_ServesFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pong.ch8"), []byte{0x12, 0x34}, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	srv := newTestServer(t, os.DirFS(dir), DefaultOptions())
	addr := startServer(t, srv)

	resp := roundTrip(t, addr, protocol.NewFetchCommand(0).Encode())
	assert.True(t, bytes.Equal([]byte{0x00, 0x02, 0x12, 0x34}, resp))
	assert.Equal(t, 1, srv.Catalog().Len())
}

func TestServer_MissingFileAfterStartup(t *testing.T) {
	cat, err := catalog.Build([]string{"gone.ch8"})
	require.NoError(t, err)
	srv := New(cat, fstest.MapFS{}, Options{Logger: testLogger(t)})
	addr := startServer(t, srv)

	assert.Empty(t, roundTrip(t, addr, protocol.NewFetchCommand(0).Encode()))
	ex := waitExchange(t, srv)
	assert.Equal(t, OutcomeError, ex.Outcome())
	assert.Equal(t, "gone.ch8", ex.RomName)
}
