package serial

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// Label renders the port for pickers and listings.
func (p PortInfo) Label() string {
	if !p.IsUSB {
		return p.Name
	}
	if p.SerialNumber != "" {
		return fmt.Sprintf("%s (USB %s:%s, s/n %s)", p.Name, p.VID, p.PID, p.SerialNumber)
	}
	return fmt.Sprintf("%s (USB %s:%s)", p.Name, p.VID, p.PID)
}

// ListPorts returns available serial ports, USB adapters first since the
// fixture controller enumerates as one.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].IsUSB && !result[j].IsUSB
	})
	return result, nil
}
