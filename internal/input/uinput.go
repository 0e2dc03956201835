package input

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/mwhite/inkling/internal/device"
)

// ModuleLoadError means the uinput kernel module is not loaded and none
// of the bundled builds could be inserted. Nothing can be injected
// without it, so callers should treat this as fatal.
type ModuleLoadError struct {
	Tried []string
	Err   error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("uinput module unavailable (tried %s): %v",
		strings.Join(e.Tried, ", "), e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }

// moduleDir holds prebuilt uinput.ko files shipped alongside the
// binary, one per supported OS build.
const moduleDir = "/usr/share/inkling/modules"

// knownModuleVersions are OS build versions we ship a module for, most
// recent first. The running build's version is always tried first.
var knownModuleVersions = []string{"3.20", "3.17", "3.16"}

// SetupUinput makes sure the uinput subsystem is available, inserting a
// bundled kernel module when it is not. Gen2 firmware compiles uinput
// into the kernel, so there is nothing to do there. This runs once at
// startup; its failure is attributable, not a lazy surprise later.
func SetupUinput(p device.Profile) error {
	if p == device.Gen2 {
		return nil
	}
	if moduleLoaded() {
		log.Printf("uinput module already loaded")
		return nil
	}

	versions := candidateVersions()
	var tried []string
	var lastErr error
	for _, v := range versions {
		path := fmt.Sprintf("%s/uinput-%s.ko", moduleDir, v)
		tried = append(tried, path)
		if _, err := os.Stat(path); err != nil {
			lastErr = err
			continue
		}
		out, err := exec.Command("insmod", path).CombinedOutput()
		if err != nil {
			lastErr = fmt.Errorf("insmod %s: %v: %s", path, err, strings.TrimSpace(string(out)))
			continue
		}
		log.Printf("Loaded uinput module %s", path)
		return nil
	}
	if moduleLoaded() {
		// A concurrent boot service may have raced us; that is fine.
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no bundled module files present")
	}
	return &ModuleLoadError{Tried: tried, Err: lastErr}
}

// moduleLoaded reports whether uinput shows up in the loaded module
// list. /proc/modules is the file lsmod reads.
func moduleLoaded() bool {
	data, err := os.ReadFile("/proc/modules")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "uinput ") || line == "uinput" {
			return true
		}
	}
	return false
}

// candidateVersions orders module versions to try: the running OS
// build's major.minor first, then the known-compatible fallbacks.
func candidateVersions() []string {
	out := []string{}
	if v := osBuildVersion(); v != "" {
		out = append(out, v)
	}
	for _, v := range knownModuleVersions {
		if len(out) > 0 && out[0] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// osBuildVersion extracts the major.minor of IMG_VERSION from
// /etc/os-release, the firmware's build identifier.
func osBuildVersion() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "IMG_VERSION=") {
			continue
		}
		v := strings.Trim(strings.TrimPrefix(line, "IMG_VERSION="), `"`)
		parts := strings.Split(v, ".")
		if len(parts) >= 2 {
			return parts[0] + "." + parts[1]
		}
		return v
	}
	return ""
}
