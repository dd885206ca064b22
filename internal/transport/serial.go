package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"roast_monitor/internal/models"
)

// PortOpener opens a serial port. Tests swap it for an in-memory pipe.
type PortOpener func(name string, baud int) (io.ReadWriteCloser, error)

func openSerialPort(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// ListSerialPorts returns the serial ports present on the host.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Serial reads line-oriented telemetry from a USB/serial roaster.
type Serial struct {
	port string
	baud int
	opts Options
	open PortOpener

	mu   sync.Mutex
	conn io.ReadWriteCloser
	task *task
}

func NewSerial(port string, baud int, opts Options) *Serial {
	return &Serial{port: port, baud: baud, opts: opts.withDefaults(), open: openSerialPort}
}

func (s *Serial) Connect(ctx context.Context, onReading func(models.Reading), onDisconnect func()) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return "", fmt.Errorf("%w: %s already open", ErrHandshake, s.port)
	}
	conn, err := s.open(s.port, s.baud)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrHandshake, s.port, err)
	}
	t, ctx := startTask(ctx)
	s.conn, s.task = conn, t

	st := newStream(KindSerial, s.opts, onReading)
	t.Go(func() { s.readLoop(ctx, conn, st, onDisconnect) })
	t.Go(func() {
		poll(ctx, s.opts.PollInterval, func() error {
			_, err := conn.Write([]byte(serialPollCommand))
			return err
		}, s.opts.Log)
	})
	s.opts.Log.Infow("transport_connected", "kind", KindSerial, "port", s.port, "baud", s.baud)
	return fmt.Sprintf("%s @ %d", s.port, s.baud), nil
}

func (s *Serial) readLoop(ctx context.Context, conn io.Reader, st *stream, onDisconnect func()) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			st.feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) {
				s.opts.Log.Warnw("transport_read_failed", "kind", KindSerial, "port", s.port, "error", err)
			}
			s.shutdown()
			if onDisconnect != nil {
				onDisconnect()
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close stops polling and closes the port. Safe to call more than once.
func (s *Serial) Close() error {
	return s.shutdown()
}

func (s *Serial) shutdown() error {
	s.mu.Lock()
	conn, t := s.conn, s.task
	s.conn, s.task = nil, nil
	s.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Stop()
	return conn.Close()
}
