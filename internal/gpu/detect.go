// Package gpu probes hardware acceleration capability once at startup.
// The result annotates sentinel status and metrics only; nothing branches
// on it beyond reporting the mode.
package gpu

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Mode describes the detected acceleration backend.
type Mode string

const (
	ModeGPU Mode = "gpu" // discrete GPU with dedicated VRAM available
	ModeCPU Mode = "cpu" // generic CPU execution
)

// Capability holds the detected acceleration capability.
type Capability struct {
	Mode      Mode   `json:"mode"`
	Device    string `json:"device"`     // e.g. "Intel Arc A380", empty in CPU mode
	VRAMTotal int64  `json:"vram_total"` // bytes, 0 if unknown
	Driver    string `json:"driver"`     // e.g. "i915", empty in CPU mode
}

var (
	cached     *Capability
	detectOnce sync.Once
)

// Detect probes the system for a discrete GPU via sysfs and reports the
// acceleration mode. Uses sync.Once; safe to call from any goroutine.
func Detect() *Capability {
	detectOnce.Do(func() {
		cached = detect()
		log.Printf("[gpu] capability: mode=%s device=%q vram_total=%d MB driver=%s",
			cached.Mode, cached.Device, cached.VRAMTotal/1024/1024, cached.Driver)
	})
	return cached
}

func detect() *Capability {
	cap := &Capability{Mode: ModeCPU}

	// Scan /sys/class/drm/card* for discrete GPUs exposing VRAM info
	cards, err := filepath.Glob("/sys/class/drm/card[0-9]*")
	if err != nil {
		return cap
	}

	for _, card := range cards {
		// Skip render nodes (cardN-XXX)
		if strings.Contains(filepath.Base(card), "-") {
			continue
		}

		deviceDir := filepath.Join(card, "device")

		vramBytes, err := readSysfsInt(filepath.Join(deviceDir, "mem_info_vram_total"))
		if err != nil || vramBytes == 0 {
			continue // integrated GPU or no VRAM reporting
		}

		cap.Mode = ModeGPU
		cap.VRAMTotal = vramBytes
		cap.Device = readDeviceName(deviceDir)

		if link, err := os.Readlink(filepath.Join(deviceDir, "driver")); err == nil {
			cap.Driver = filepath.Base(link)
		}
		break
	}

	return cap
}

func readSysfsInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readDeviceName(deviceDir string) string {
	data, err := os.ReadFile(filepath.Join(deviceDir, "uevent"))
	if err != nil {
		return "Unknown GPU"
	}

	var vendorID, deviceID string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PCI_ID=") {
			parts := strings.Split(strings.TrimPrefix(line, "PCI_ID="), ":")
			if len(parts) == 2 {
				vendorID = strings.ToLower(parts[0])
				deviceID = strings.ToLower(parts[1])
			}
		}
	}

	if vendorID == "" {
		return "Unknown GPU"
	}
	return "GPU (" + vendorID + ":" + deviceID + ")"
}
