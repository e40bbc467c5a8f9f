package tui

import (
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkootstra/romlink/internal/protocol"
	"github.com/nkootstra/romlink/internal/server"
)

var testRoms = []protocol.RomEntry{
	{ID: 0, Name: "pong.ch8"},
	{ID: 1, Name: "invaders.ch8"},
}

func newTestModel() Model {
	return NewModel(Options{
		Events:   make(chan server.Event),
		Roms:     testRoms,
		HTTPAddr: ":8080",
	})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

func TestNewModel_InitialState(t *testing.T) {
	m := newTestModel()

	assert.False(t, m.card.listening)
	assert.Equal(t, 2, m.card.roms)
	assert.Equal(t, panelRight, m.focus)
	assert.Empty(t, m.traffic)
}

func TestModel_HandleListening(t *testing.T) {
	m := newTestModel()

	m = update(t, m, serverEventMsg{event: server.Event{Type: server.EventListening, Addr: "127.0.0.1:4321"}})
	assert.True(t, m.card.listening)
	assert.Equal(t, "127.0.0.1:4321", m.card.addr)

	view := m.ViewString()
	assert.Contains(t, view, "Listening")
	assert.Contains(t, view, "127.0.0.1:4321")
	assert.Contains(t, view, "http://localhost:8080")
}

func TestModel_HandleExchange(t *testing.T) {
	m := newTestModel()

	ok := server.Exchange{
		Opcode:   protocol.OpFetch,
		RomID:    1,
		RomName:  "invaders.ch8",
		Bytes:    6,
		Duration: 3 * time.Millisecond,
		Time:     time.Now(),
	}
	failed := server.Exchange{
		Opcode: protocol.OpFetch,
		RomID:  9,
		Err:    protocol.ErrUnknownRom,
		Time:   time.Now(),
	}
	m = update(t, m, serverEventMsg{event: server.Event{Type: server.EventExchange, Exchange: &ok}})
	m = update(t, m, serverEventMsg{event: server.Event{Type: server.EventExchange, Exchange: &failed}})

	require.Len(t, m.traffic, 2)
	assert.Contains(t, m.traffic[0], "FETCH")
	assert.Contains(t, m.traffic[0], "invaders.ch8")
	assert.Contains(t, m.traffic[1], "unknown_rom")
	assert.Equal(t, 1, m.card.served)
	assert.Equal(t, 1, m.card.failed)
	assert.Equal(t, int64(6), m.card.bytes)
}

func TestModel_HandleStale(t *testing.T) {
	m := newTestModel()

	m = update(t, m, serverEventMsg{event: server.Event{Type: server.EventStale, Path: "/roms/new.ch8"}})
	assert.True(t, m.card.stale)
	assert.Contains(t, m.ViewString(), "restart to serve it")
}

func TestModel_TrafficRingBuffer(t *testing.T) {
	m := newTestModel()
	ex := server.Exchange{Opcode: protocol.OpList, Time: time.Now()}

	for i := 0; i < maxTrafficEntries+50; i++ {
		m = update(t, m, serverEventMsg{event: server.Event{Type: server.EventExchange, Exchange: &ex}})
	}
	assert.Len(t, m.traffic, maxTrafficEntries)
	assert.Equal(t, maxTrafficEntries+50, m.card.served)
}

func TestModel_UptimeOnlyWhileListening(t *testing.T) {
	m := newTestModel()

	m = update(t, m, tickMsg(time.Now()))
	assert.Zero(t, m.card.uptime)

	m.card.listening = true
	m = update(t, m, tickMsg(time.Now()))
	m = update(t, m, tickMsg(time.Now()))
	assert.Equal(t, 2, m.card.uptime)
}

func TestModel_QuitCallsOnQuit(t *testing.T) {
	called := 0
	m := NewModel(Options{Events: make(chan server.Event), OnQuit: func() { called++ }})

	m = update(t, m, tea.KeyPressMsg{Code: 'q', Text: "q"})
	assert.True(t, m.quitting)
	assert.Equal(t, 1, called)
	assert.Empty(t, m.ViewString())
}

func TestModel_SplitLayout(t *testing.T) {
	m := newTestModel()

	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	assert.False(t, m.showSplit)
	assert.False(t, m.ready)

	m = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	assert.True(t, m.showSplit)
	assert.True(t, m.ready)

	m = update(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	assert.Equal(t, panelLeft, m.focus)
}

func TestListenForEvents_ClosedChannel(t *testing.T) {
	events := make(chan server.Event)
	close(events)
	assert.Nil(t, listenForEvents(events)())
}

func TestListenForEvents_Delivers(t *testing.T) {
	events := make(chan server.Event, 1)
	events <- server.Event{Type: server.EventStale}

	msg := listenForEvents(events)()
	ev, ok := msg.(serverEventMsg)
	require.True(t, ok)
	assert.Equal(t, server.EventStale, ev.event.Type)
}

func TestRenderServerCard(t *testing.T) {
	card := renderServerCard(serverCard{
		addr:      "0.0.0.0:4321",
		listening: true,
		roms:      3,
		uptime:    3661,
		failed:    2,
	}, "")
	assert.Contains(t, card, "romlink")
	assert.Contains(t, card, "0.0.0.0:4321")
	assert.Contains(t, card, "1h 1m 1s")
	assert.Contains(t, card, "2 failed")
	assert.NotContains(t, card, "Gateway")
}

func TestRenderCatalog(t *testing.T) {
	assert.Contains(t, renderCatalog(nil), "No ROMs")

	long := protocol.RomEntry{ID: 7, Name: "a-very-long-rom-name-that-does-not-fit.ch8"}
	out := renderCatalog([]protocol.RomEntry{long})
	assert.Contains(t, out, "7")
	assert.NotContains(t, out, long.Name)
	assert.Contains(t, out, "…")
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, "", GatewayURL(""))
	assert.Equal(t, "http://localhost:8080", GatewayURL(":8080"))
	assert.Equal(t, "http://localhost:8080", GatewayURL("0.0.0.0:8080"))
	assert.Equal(t, "http://10.0.0.2:8080", GatewayURL("10.0.0.2:8080"))
}

func TestStyledOutcome_Unknown(t *testing.T) {
	assert.Equal(t, "weird", StyledOutcome("weird"))
	assert.Contains(t, StyledOutcome("ok"), "ok")
}
