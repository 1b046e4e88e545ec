package modem

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// readPoll is the per-read timeout on the real port. waitFor re-checks its
// context between reads, so this also bounds how late a cancellation lands.
const readPoll = 200 * time.Millisecond

// Open opens the serial device for the GSM module, e.g. /dev/ttyUSB0 at
// 9600 baud for a SIM800L.
func Open(device string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}
