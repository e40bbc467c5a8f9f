package protocol

import (
	"strings"
	"testing"
)

func TestLimitsFitSixteenBits(t *testing.T) {
	for name, v := range map[string]int{
		"MaxPayloadBytes": MaxPayloadBytes,
		"MaxRomEntries":   MaxRomEntries,
		"MaxNameBytes":    MaxNameBytes,
	} {
		if v != 0xFFFF {
			t.Errorf("%s: expected 65535, got %d", name, v)
		}
	}
}

func TestCommandFrameLength(t *testing.T) {
	if CommandFrameLength != 4 {
		t.Errorf("expected CommandFrameLength 4, got %d", CommandFrameLength)
	}
	if len(EncodeCommand(OpFetch, 0xFFFF)) != CommandFrameLength {
		t.Error("encoded command does not match CommandFrameLength")
	}
}

func TestOpcodeValues(t *testing.T) {
	if OpList != 0x01 {
		t.Errorf("expected OpList 0x01, got 0x%02x", uint8(OpList))
	}
	if OpFetch != 0x02 {
		t.Errorf("expected OpFetch 0x02, got 0x%02x", uint8(OpFetch))
	}
}

func TestBackoffValues(t *testing.T) {
	if BackoffBaseMs >= BackoffMaxMs {
		t.Errorf("expected BackoffBaseMs (%d) < BackoffMaxMs (%d)", BackoffBaseMs, BackoffMaxMs)
	}
	if BackoffJitterMin >= BackoffJitterMax {
		t.Errorf("expected BackoffJitterMin (%f) < BackoffJitterMax (%f)", BackoffJitterMin, BackoffJitterMax)
	}
	if BackoffMaxAttempts <= 0 {
		t.Errorf("expected BackoffMaxAttempts > 0, got %d", BackoffMaxAttempts)
	}
}

func TestWebSocketPath(t *testing.T) {
	if !strings.HasPrefix(WebSocketPath, "/") {
		t.Errorf("WebSocketPath should start with /, got %q", WebSocketPath)
	}
}

func TestSerialBaudRate(t *testing.T) {
	if DefaultSerialBaudRate != 9600 {
		t.Errorf("expected DefaultSerialBaudRate 9600, got %d", DefaultSerialBaudRate)
	}
}
