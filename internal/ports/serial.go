package ports

// PortEnumerator lists the serial port identifiers currently visible
// to the OS.
type PortEnumerator interface {
	ListPorts() ([]string, error)
}

// DevicePrimer sends the best-effort keep-awake command to a device
// right before flashing. Errors are for logging only; callers never
// abort on them.
type DevicePrimer interface {
	Prime(port string) error
}
