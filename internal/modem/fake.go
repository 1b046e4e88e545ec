package modem

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// FakePort is a scripted stand-in for the serial device. Each written
// command is matched against Responses by prefix and the mapped reply is
// queued for the next Read. Reads past the queued data return io.EOF,
// which Send treats as a missing response.
type FakePort struct {
	mu sync.Mutex

	// Responses maps a command prefix (e.g. "AT+CMGS") to the device reply.
	Responses map[string]string

	// Writes records everything written to the port.
	Writes []string

	// WriteErr, if set, is returned by Write.
	WriteErr error

	pending bytes.Buffer
}

// NewFakePort creates a FakePort that answers like a healthy SIM800:
// OK to commands, a prompt for AT+CMGS, and +CMGS/OK after the body.
func NewFakePort() *FakePort {
	return &FakePort{
		Responses: map[string]string{
			"AT\r":      "\r\nOK\r\n",
			"AT+CMGF":   "\r\nOK\r\n",
			"AT+CREG":   "\r\n+CREG: 0,1\r\n\r\nOK\r\n",
			"AT+CMGS":   "\r\n> ",
			"\x1a-body": "\r\n+CMGS: 12\r\n\r\nOK\r\n",
		},
	}
}

// Write records the data and queues the scripted reply.
func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteErr != nil {
		return 0, f.WriteErr
	}

	s := string(p)
	f.Writes = append(f.Writes, s)

	key := s
	if bytes.Contains(p, []byte{0x1a}) {
		key = "\x1a-body" // the SMS body terminated with Ctrl-Z
	}
	for prefix, reply := range f.Responses {
		if strings.HasPrefix(key, prefix) {
			f.pending.WriteString(reply)
			break
		}
	}
	return len(p), nil
}

// Read returns queued reply bytes, or io.EOF when the script is exhausted.
func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending.Len() == 0 {
		return 0, io.EOF
	}
	return f.pending.Read(p)
}

// Sent returns the concatenated writes, handy for asserting the dialogue.
func (f *FakePort) Sent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.Writes, "")
}
