// Package platform identifies the host operating system family.
package platform

import (
	"os/exec"
	"runtime"
)

// Host is the operating system family scripts are launched on.
type Host int

const (
	// Other is any platform without terminal or browser support.
	Other Host = iota
	// Darwin is macOS.
	Darwin
	// Linux is any Linux desktop or server.
	Linux
	// Windows is Microsoft Windows.
	Windows
)

// String returns the platform name.
func (h Host) String() string {
	switch h {
	case Darwin:
		return "darwin"
	case Linux:
		return "linux"
	case Windows:
		return "windows"
	default:
		return "other"
	}
}

// FromGOOS maps a GOOS value to a Host.
func FromGOOS(goos string) Host {
	switch goos {
	case "darwin":
		return Darwin
	case "linux":
		return Linux
	case "windows":
		return Windows
	default:
		return Other
	}
}

// Current returns the platform this binary runs on.
func Current() Host {
	return FromGOOS(runtime.GOOS)
}

// LookPathFunc matches exec.LookPath. Resolution code takes one so that it
// can be tested against a fake PATH.
type LookPathFunc func(file string) (string, error)

// SystemLookPath is exec.LookPath.
var SystemLookPath LookPathFunc = exec.LookPath
