package fixsource

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Porter is the minimal surface a GPS receiver port needs to expose. The
// abstraction keeps the mux testable without real serial hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// PortOptions configures the serial link to the receiver.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies receiver defaults for any
// unset values. NMEA receivers almost universally speak 9600 8N1.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 9600
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: must be 1 or 2", opts.StopBits)
	}
	switch opts.Parity {
	case "":
		opts.Parity = "none"
	case "none", "odd", "even":
	default:
		return opts, fmt.Errorf("invalid parity %q: must be none, odd or even", opts.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial Mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// OpenSerialSource opens a real receiver port at the given path and wraps
// it in a Source. A port that cannot be opened is a hard failure: there is
// no point running the agent without its position input.
func OpenSerialSource(path string, opts PortOptions) (*Source[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open gps port %s: %w", path, err)
	}

	return NewSource[serial.Port](port), nil
}
