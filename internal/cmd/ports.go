package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"flashhunt/internal/domain"
)

// PortsCmd lists enumerated serial ports
type PortsCmd struct{}

// Run executes the ports command
func (p *PortsCmd) Run(cli *CLI) error {
	details, err := cli.Container.Enumerator.ListDetailed()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	if len(details) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tSERIAL\tDEVICE?")
	for _, detail := range details {
		usb := ""
		vidPid := ""
		if detail.IsUSB {
			usb = "yes"
			vidPid = fmt.Sprintf("%s:%s", detail.VID, detail.PID)
		}
		likely := ""
		if domain.LooksLikeUSBSerial(detail.Name) {
			likely = "likely"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", detail.Name, usb, vidPid, detail.SerialNumber, likely)
	}
	return w.Flush()
}
