package rpc

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultLogger is used by connections that don't supply ConnLog,
// mirroring the teacher's nil-mainFunc default ("all bootstrap messages
// will fail") but for logging: quiet unless told otherwise.
var defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.Disabled)

// newConnID mints the per-connection correlation id threaded through
// every log line a Conn emits.
func newConnID() string {
	return uuid.NewString()
}
