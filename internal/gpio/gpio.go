// Package gpio provides the acknowledge button input and buzzer output
// with hardware abstraction. The real implementation uses the Linux GPIO
// character device; the fake allows testing without hardware.
package gpio

// Button reads the wearer's "I'm OK" push button.
type Button interface {
	// Pressed returns the logical button state. The raw GPIO value is
	// inverted: the line is pulled up and pressing grounds it.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Buzzer drives the local alarm sounder.
type Buzzer interface {
	// Set turns the buzzer on or off.
	Set(on bool) error

	// Close silences the buzzer and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinButton = 17
	DefaultPinBuzzer = 27
)
