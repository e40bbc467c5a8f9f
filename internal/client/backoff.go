package client

import (
	"math/rand"
	"time"

	"github.com/nkootstra/romlink/internal/protocol"
)

// CalculateBackoff returns how long Client.dial waits after the given number
// of failed dials, counted from zero. The wait doubles from BackoffBaseMs,
// stops growing at BackoffMaxMs and is stretched by a random 10-20%.
func CalculateBackoff(failures int) time.Duration {
	wait := protocol.BackoffBaseMs * time.Millisecond
	limit := protocol.BackoffMaxMs * time.Millisecond
	for i := 0; i < failures && wait < limit; i++ {
		wait *= protocol.BackoffMultiplier
	}
	wait = min(wait, limit)

	stretch := protocol.BackoffJitterMin + rand.Float64()*(protocol.BackoffJitterMax-protocol.BackoffJitterMin)
	return wait + time.Duration(float64(wait)*stretch)
}
