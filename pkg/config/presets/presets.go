package presets

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/modoterra/logcatview/pkg/config"
)

// deviceLogcat is the logcat binary on an Android device (Termux, adb shell).
const deviceLogcat = "/system/bin/logcat"

var lookPath = exec.LookPath

var generators = map[string]func() (*config.Config, error){
	"adb":      GenerateADB,
	"device":   GenerateDevice,
	"emulator": GenerateEmulator,
}

// Names returns the available preset names, sorted.
func Names() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate builds the named preset.
func Generate(name string) (*config.Config, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", name, Names())
	}
	return gen()
}

// GenerateADB creates a config that reads logcat from the device attached
// over adb. It requires adb on PATH.
func GenerateADB() (*config.Config, error) {
	adb, err := lookPath("adb")
	if err != nil {
		return nil, fmt.Errorf("adb not found on PATH: %w", err)
	}
	cfg := config.Default()
	cfg.Command = []string{adb, "logcat"}
	return cfg, nil
}

// GenerateEmulator targets the first emulator instance (emulator-5554).
func GenerateEmulator() (*config.Config, error) {
	cfg, err := GenerateADB()
	if err != nil {
		return nil, err
	}
	cfg.Serial = "emulator-5554"
	return cfg, nil
}

// GenerateDevice creates a config for running on the device itself, where
// logcat is invoked directly.
func GenerateDevice() (*config.Config, error) {
	if _, err := os.Stat(deviceLogcat); err != nil {
		return nil, fmt.Errorf("%s not found; the device preset must run on Android", deviceLogcat)
	}
	cfg := config.Default()
	cfg.Command = []string{deviceLogcat}
	// logcat on-device has no user-wide config dir layout; keep records next to the socket.
	cfg.RecordsDir = "${home}/logcatview/records"
	cfg.Socket = "${home}/logcatview.sock"
	return cfg, nil
}
