package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
)

// keepAwakeCommand discourages the device from entering a low-power
// state mid-upload. Devices that don't understand it simply ignore it.
const keepAwakeCommand = "stay\n"

// settleDelay gives the device time to process the command before the
// port is reopened by the upload tool.
const settleDelay = 500 * time.Millisecond

// Primer sends the keep-awake command over a serial port
type Primer struct {
	baud int
}

// Compile-time interface verification
var _ ports.DevicePrimer = (*Primer)(nil)

// NewPrimer creates a Primer writing at the given baud rate
func NewPrimer(baud int) *Primer {
	return &Primer{baud: baud}
}

// Prime opens the port, writes the keep-awake command, waits for it to
// settle and closes the port. Errors are returned for logging only;
// callers never abort the flash on them.
func (p *Primer) Prime(port string) error {
	mode := &serial.Mode{
		BaudRate: p.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	conn, err := serial.Open(port, mode)
	if err != nil {
		return fmt.Errorf("failed to open %s for priming: %w", port, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(keepAwakeCommand)); err != nil {
		return fmt.Errorf("failed to write keep-awake command to %s: %w", port, err)
	}

	logging.Logger.Debug("Sent keep-awake command", "port", port, "baud", p.baud)
	time.Sleep(settleDelay)
	return nil
}
