package protocol

const (
	CommandFrameLength    = 4
	MaxPayloadBytes       = 0xFFFF
	MaxRomEntries         = 0xFFFF
	MaxNameBytes          = 0xFFFF
	DefaultPort           = 4321
	DefaultSerialBaudRate = 9600
	ReadTimeoutMs         = 5_000
	WriteTimeoutMs        = 10_000
	DialTimeoutMs         = 5_000
	BackoffBaseMs         = 250
	BackoffMultiplier     = 2
	BackoffMaxMs          = 5_000
	BackoffMaxAttempts    = 4
	BackoffJitterMin      = 0.1
	BackoffJitterMax      = 0.2
	WebSocketPath         = "/ws"
	CacheFreshnessSeconds = 600
)
