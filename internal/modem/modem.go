// Package modem implements the local notification channel: SMS over a
// SIM800-class GSM module driven with AT commands on a serial line.
// The dialogue runs over a plain io.ReadWriter so tests can script the
// device; the real port lives in serial.go.
package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// ChannelName identifies this channel in logs and the dedup ledger.
const ChannelName = "modem"

const (
	ctrlZ = 0x1a // finalizes an SMS body in text mode

	registrationTTL = 30 * time.Second
)

// ErrModemError is returned when the device answers ERROR to a command.
var ErrModemError = errors.New("modem returned ERROR")

// Modem owns the serial device exclusively; no other component may write
// to the port. portMu serializes the dialogue; the registration cache has
// its own lock so Available never waits behind an SMS in flight.
type Modem struct {
	port      io.ReadWriter
	recipient string
	logger    *zap.Logger

	portMu sync.Mutex

	statusMu   sync.Mutex
	checkedAt  time.Time
	registered bool
}

// New creates the modem channel. The port is typically opened with Open;
// recipient is the guardian's number in international format.
func New(port io.ReadWriter, recipient string, logger *zap.Logger) *Modem {
	return &Modem{port: port, recipient: recipient, logger: logger}
}

// Name returns the channel name.
func (m *Modem) Name() string { return ChannelName }

// Available reports whether the module is registered on the cellular
// network, cached so the poll loop doesn't chat with the device every tick.
// It never blocks on the port: while a send holds the port for its SMS
// dialogue the stale cached answer is returned instead.
func (m *Modem) Available() bool {
	if m.port == nil {
		return false
	}

	m.statusMu.Lock()
	cached := m.registered
	fresh := time.Since(m.checkedAt) < registrationTTL
	m.statusMu.Unlock()
	if fresh {
		return cached
	}

	if !m.portMu.TryLock() {
		return cached
	}
	defer m.portMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	transcript, err := m.chat(ctx, "AT+CREG?\r", "OK")
	registered := err == nil && registeredFromCREG(transcript)
	if err != nil {
		m.logger.Warn("modem registration check failed", zap.Error(err))
	}

	m.statusMu.Lock()
	m.checkedAt = time.Now()
	m.registered = registered
	m.statusMu.Unlock()
	return registered
}

// Send delivers one alert as an SMS: text mode, address the recipient,
// write the body, finalize with Ctrl-Z, then parse the response for the
// success token. Any unexpected response is a channel failure, never fatal.
func (m *Modem) Send(ctx context.Context, event logic.AlertEvent) error {
	m.portMu.Lock()
	defer m.portMu.Unlock()

	if m.port == nil {
		return errors.New("modem port not open")
	}

	if _, err := m.chat(ctx, "AT\r", "OK"); err != nil {
		return fmt.Errorf("modem handshake: %w", err)
	}
	if _, err := m.chat(ctx, "AT+CMGF=1\r", "OK"); err != nil {
		return fmt.Errorf("enter text mode: %w", err)
	}
	if _, err := m.chat(ctx, "AT+CMGS=\""+m.recipient+"\"\r", ">"); err != nil {
		return fmt.Errorf("address recipient: %w", err)
	}

	body := smsBody(event)
	if _, err := m.port.Write(append([]byte(body), ctrlZ)); err != nil {
		return fmt.Errorf("write sms body: %w", err)
	}
	// The module answers +CMGS: <ref> then OK on success.
	if _, err := m.waitFor(ctx, "OK"); err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	return nil
}

// chat writes one command and waits for the expected token.
func (m *Modem) chat(ctx context.Context, cmd, want string) (string, error) {
	if _, err := m.port.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("write %q: %w", strings.TrimSpace(cmd), err)
	}
	return m.waitFor(ctx, want)
}

// waitFor accumulates device output until the token appears. ERROR in the
// stream, end of stream, or the context deadline all fail the attempt.
func (m *Modem) waitFor(ctx context.Context, token string) (string, error) {
	var buf bytes.Buffer
	tmp := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return buf.String(), fmt.Errorf("modem response timeout: %w", err)
		}

		n, err := m.port.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
			s := buf.String()
			if strings.Contains(s, token) {
				return s, nil
			}
			if strings.Contains(s, "ERROR") {
				return s, ErrModemError
			}
		}
		if err != nil {
			return buf.String(), fmt.Errorf("read modem: %w", err)
		}
	}
}

// smsBody renders the alert as a single SMS. CR is what terminates AT
// lines, so the body must not contain one.
func smsBody(event logic.AlertEvent) string {
	text := fmt.Sprintf("[%s] %s (device %s, %s)",
		event.Kind, event.Message, event.DeviceID,
		event.CreatedAt.UTC().Format(time.RFC3339))
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.ReplaceAll(text, "\n", " ")
}

// registeredFromCREG parses an AT+CREG? transcript. Status 1 is registered
// home, 5 is registered roaming.
func registeredFromCREG(transcript string) bool {
	idx := strings.Index(transcript, "+CREG:")
	if idx < 0 {
		return false
	}
	line := transcript[idx:]
	if end := strings.IndexAny(line, "\r\n"); end >= 0 {
		line = line[:end]
	}
	comma := strings.LastIndex(line, ",")
	if comma < 0 || comma+1 >= len(line) {
		return false
	}
	status := strings.TrimSpace(line[comma+1:])
	return status == "1" || status == "5"
}
