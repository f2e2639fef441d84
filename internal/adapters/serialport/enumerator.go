// Package serialport adapts go.bug.st/serial to the enumeration and
// priming ports.
package serialport

import (
	"fmt"

	"go.bug.st/serial/enumerator"

	"flashhunt/internal/ports"
)

// Enumerator lists serial ports via the OS enumeration facilities
type Enumerator struct{}

// Compile-time interface verification
var _ ports.PortEnumerator = (*Enumerator)(nil)

// NewEnumerator creates an Enumerator
func NewEnumerator() *Enumerator {
	return &Enumerator{}
}

// ListPorts returns the identifiers of all currently visible serial ports
func (e *Enumerator) ListPorts() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	names := make([]string, 0, len(details))
	for _, port := range details {
		names = append(names, port.Name)
	}
	return names, nil
}

// PortDetail describes one enumerated port for display purposes
type PortDetail struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// ListDetailed returns enumerated ports with USB metadata
func (e *Enumerator) ListDetailed() ([]PortDetail, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	result := make([]PortDetail, 0, len(details))
	for _, port := range details {
		result = append(result, PortDetail{
			Name:         port.Name,
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
		})
	}
	return result, nil
}
