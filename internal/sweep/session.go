package sweep

import (
	"context"
	"errors"
	"fmt"
)

// ErrReadTimeout is returned by Session implementations when no bytes
// arrive within the read deadline.
var ErrReadTimeout = errors.New("sweep: read timed out")

// DeviceError reports a command the instrument rejected.
type DeviceError struct {
	Command string
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("sweep: device rejected %q: %s", e.Command, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Session is the transport-level collaborator that owns the connection
// to the instrument. Implementations live outside this package; tests
// use an in-memory fake.
type Session interface {
	// TuneTo centres the instrument's capture band on the given
	// frequency in Hz.
	TuneTo(ctx context.Context, centre uint64) error

	// ConfigureCapture sets the input mode and block geometry for
	// subsequent captures.
	ConfigureCapture(ctx context.Context, mode string, samplesPerPacket, packetsPerBlock int) error

	// ArmCapture triggers one capture block.
	ArmCapture(ctx context.Context) error

	// AbortCapture stops any in-flight capture and returns the
	// instrument to idle.
	AbortCapture() error

	// FlushPendingData discards any buffered capture data on the
	// instrument side.
	FlushPendingData(ctx context.Context) error

	// ReadRaw fills p with raw stream bytes, honouring ctx deadlines
	// and cancellation. It returns ErrReadTimeout when the deadline
	// passes with no data.
	ReadRaw(ctx context.Context, p []byte) (int, error)
}
