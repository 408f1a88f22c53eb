package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/openrf/wsasweep/internal/sweep"
)

const (
	// The instrument listens for commands and streams capture data on
	// two fixed ports.
	commandPort = "37001"
	dataPort    = "37000"

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// deviceSession is the TCP transport to the instrument: a command
// connection carrying SCPI-style text and a data connection streaming
// raw packet bytes. It implements sweep.Session.
type deviceSession struct {
	command net.Conn
	data    net.Conn
}

func newDeviceSession(ctx context.Context, host string) (*deviceSession, error) {
	dialer := net.Dialer{Timeout: dialTimeout}

	command, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, commandPort))
	if err != nil {
		return nil, fmt.Errorf("connecting to command port: %w", err)
	}

	data, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, dataPort))
	if err != nil {
		_ = command.Close()
		return nil, fmt.Errorf("connecting to data port: %w", err)
	}

	return &deviceSession{command: command, data: data}, nil
}

func (s *deviceSession) send(ctx context.Context, cmd string) error {
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.command.SetWriteDeadline(deadline); err != nil {
		return &sweep.DeviceError{Command: cmd, Err: err}
	}

	if _, err := fmt.Fprintf(s.command, "%s\n", cmd); err != nil {
		return &sweep.DeviceError{Command: cmd, Err: err}
	}
	return nil
}

func (s *deviceSession) TuneTo(ctx context.Context, centre uint64) error {
	return s.send(ctx, fmt.Sprintf(":FREQ:CENT %d", centre))
}

func (s *deviceSession) ConfigureCapture(ctx context.Context, mode string, samplesPerPacket, packetsPerBlock int) error {
	if err := s.send(ctx, fmt.Sprintf(":INPUT:MODE %s", mode)); err != nil {
		return err
	}
	if err := s.send(ctx, fmt.Sprintf(":TRACE:SPPACKET %d", samplesPerPacket)); err != nil {
		return err
	}
	return s.send(ctx, fmt.Sprintf(":TRACE:BLOCK:PACKETS %d", packetsPerBlock))
}

func (s *deviceSession) ArmCapture(ctx context.Context) error {
	return s.send(ctx, ":TRACE:BLOCK:DATA?")
}

func (s *deviceSession) AbortCapture() error {
	return s.send(context.Background(), ":SYSTEM:ABORT")
}

func (s *deviceSession) FlushPendingData(ctx context.Context) error {
	return s.send(ctx, ":SWEEP:FLUSH")
}

// ReadRaw fills p from the data stream, mapping transport deadlines to
// the sweep package's timeout error.
func (s *deviceSession) ReadRaw(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sweep.DefaultReadTimeout)
	}
	if err := s.data.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	n, err := s.data.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			return n, sweep.ErrReadTimeout
		}
	}
	return n, err
}

func (s *deviceSession) Close() error {
	cmdErr := s.command.Close()
	dataErr := s.data.Close()
	if cmdErr != nil {
		return cmdErr
	}
	return dataErr
}
