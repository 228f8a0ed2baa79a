package link

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"
	"go.bug.st/serial"
)

// SerialPort wraps a go.bug.st/serial port. Reads time out periodically so
// the reader can notice shutdown; writes are serialised.
type SerialPort struct {
	name string
	port serial.Port
	log  *slog.Logger

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// OpenSerial opens the named serial device at the given baud rate. A zero
// readTimeout blocks reads until data arrives.
func OpenSerial(name string, baud int, readTimeout time.Duration, log *slog.Logger) (*SerialPort, error) {
	if log == nil {
		log = slog.Default()
	}

	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v at %d baud", name, baud)
	}
	if readTimeout > 0 {
		if err := p.SetReadTimeout(readTimeout); err != nil {
			_ = p.Close()
			return nil, errors.Wrapf(err, "set read timeout on %v", name)
		}
	}

	log.Info("serial: port opened", "device", name, "baud", baud, "read_timeout", readTimeout)
	return &SerialPort{name: name, port: p, log: log}, nil
}

// ListSerialPorts returns the serial devices present on the system.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrapf(err, "list serial ports")
	}
	return ports, nil
}

// Read returns 0, nil when the read timeout expires without data.
func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := s.port.Write(p)
	if err != nil {
		s.log.Error("serial: write error", "device", s.name, "err", err)
		return n, errors.Wrapf(err, "write %v", s.name)
	}
	s.log.Debug("serial: sent", "device", s.name, "bytes", n)
	return n, nil
}

// Close closes the port. It is safe to call more than once.
func (s *SerialPort) Close() error {
	s.closeOnce.Do(func() {
		s.log.Info("serial: closing port", "device", s.name)
		if err := s.port.Close(); err != nil {
			s.closeErr = errors.Wrapf(err, "close %v", s.name)
		}
	})
	return s.closeErr
}
