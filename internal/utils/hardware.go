package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// TerminalID reads the physical MAC address of the machine and hashes
// it into a stable terminal identifier like "PS-A1B2C3D4". Sales and
// stock movements are stamped with it, and license keys are bound to it.
func TerminalID() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "UNKNOWN-TERMINAL"
	}

	var macAddress string
	for _, i := range interfaces {
		// Find the first active physical network interface
		if i.Flags&net.FlagUp != 0 && len(i.HardwareAddr) > 0 {
			macAddress = i.HardwareAddr.String()
			break
		}
	}

	if macAddress == "" {
		return "UNKNOWN-TERMINAL"
	}

	hash := sha256.Sum256([]byte(macAddress + "PAYESMART-TERMINAL-SALT"))
	hashString := hex.EncodeToString(hash[:])

	return "PS-" + strings.ToUpper(hashString[:8])
}
