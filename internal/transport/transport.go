package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roast_monitor/internal/lineparser"
	"roast_monitor/internal/logger"
	"roast_monitor/internal/models"
)

var (
	// ErrUnavailable means the host lacks the capability the transport needs.
	ErrUnavailable = errors.New("transport unavailable on this host")
	// ErrHandshake means the device or port could not be opened.
	ErrHandshake   = errors.New("device handshake failed")
	ErrUnknownKind = errors.New("unknown transport kind")
)

// Transport kinds accepted by New.
const (
	KindSerial    = "serial"
	KindWebSocket = "websocket"
	KindBLE       = "ble"
	KindSimulator = "simulator"
)

// Poll commands written to devices that only push on request.
const (
	serialPollCommand    = "READ\r\n"
	websocketPollCommand = "READ\n"
)

const (
	DefaultPollInterval = time.Second
	DefaultBaud         = 115200
)

// Transport delivers readings from a roaster.
//
// Connect opens the device and returns a human readable label. onReading is
// called from the transport's own goroutine for every parsed reading;
// onDisconnect is called once if the device goes away on its own (never
// after Close).
type Transport interface {
	Connect(ctx context.Context, onReading func(models.Reading), onDisconnect func()) (string, error)
	Close() error
}

// Params selects and addresses a transport.
type Params struct {
	Kind    string `json:"kind" binding:"required"`
	Address string `json:"address"`
	Baud    int    `json:"baud"`
}

// Options are the process-wide transport settings.
type Options struct {
	PollInterval time.Duration
	Fallback     lineparser.ETFallback
	DefaultBaud  int
	Simulator    SimulatorConfig
	Log          *logger.Logger
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DefaultBaud <= 0 {
		o.DefaultBaud = DefaultBaud
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Simulator = o.Simulator.withDefaults()
	return o
}

// New builds the transport selected by p.
func New(p Params, opts Options) (Transport, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(p.Kind) {
	case KindSerial:
		if p.Address == "" {
			return nil, fmt.Errorf("%w: serial port name is required", ErrHandshake)
		}
		baud := p.Baud
		if baud <= 0 {
			baud = opts.DefaultBaud
		}
		return NewSerial(p.Address, baud, opts), nil
	case KindWebSocket, "ws":
		if p.Address == "" {
			return nil, fmt.Errorf("%w: websocket url is required", ErrHandshake)
		}
		return NewWebSocket(p.Address, opts), nil
	case KindBLE, "bluetooth":
		return BLE{}, nil
	case KindSimulator, "sim":
		return NewSimulator(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}

// BLE stands in for Bluetooth LE adapters, which this host does not support.
type BLE struct{}

func (BLE) Connect(context.Context, func(models.Reading), func()) (string, error) {
	return "", fmt.Errorf("%w: bluetooth LE is not supported", ErrUnavailable)
}

func (BLE) Close() error { return nil }
