// Package daemon implements Component D's daemon lifecycle: a single PID
// file, an append-only log, platform-native service descriptors (launchd on
// macOS, a systemd user unit on Linux) with a detached-process fallback, and
// the run()/stop()/signal_reload() operations spec.md §4.D describes.
//
// Grounded on the teacher's cmd/server/main.go graceful-shutdown pattern
// (signal.Notify + select over a shutdown channel and a server-error
// channel) and internal/cleanup/internal/backup's Start()/Stop() goroutine
// lifecycle shape, generalized from "manage one HTTP server" to "manage one
// scheduler plus a monitor tick."
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
)

const serviceLabel = "dev.agentctl.daemon"

// ServiceHost installs/starts/stops the platform's notion of "keep this
// process running," writing only plain text service descriptors — never a
// dependency on the host shell (spec.md §9 REDESIGN FLAGS).
type ServiceHost interface {
	// Install writes (or overwrites) the service descriptor pointing at
	// execPath's hidden `daemon _run` subcommand.
	Install(execPath string) error
	// Uninstall removes the service descriptor, if present.
	Uninstall() error
	// Start asks the OS to start the installed service.
	Start() error
	// Stop asks the OS to stop the installed service. Best-effort: the
	// caller still falls back to signaling the PID directly.
	Stop() error
}

// NewServiceHost picks the ServiceHost for the running platform.
func NewServiceHost() ServiceHost {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return &launchdHost{
			plistPath: filepath.Join(home, "Library", "LaunchAgents", serviceLabel+".plist"),
		}
	case "linux":
		home, _ := os.UserHomeDir()
		return &systemdHost{
			unitPath: filepath.Join(home, ".config", "systemd", "user", serviceLabel+".service"),
		}
	default:
		return &detachedHost{}
	}
}

// launchdHost manages a per-user LaunchAgent plist.
type launchdHost struct {
	plistPath string
}

func (h *launchdHost) Install(execPath string) error {
	if err := os.MkdirAll(filepath.Dir(h.plistPath), 0o755); err != nil {
		return fmt.Errorf("daemon: failed creating LaunchAgents dir: %w", err)
	}
	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>daemon</string>
		<string>_run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
</dict>
</plist>
`, serviceLabel, execPath)
	return os.WriteFile(h.plistPath, []byte(plist), 0o644)
}

func (h *launchdHost) Uninstall() error {
	_ = h.Stop()
	err := os.Remove(h.plistPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (h *launchdHost) Start() error {
	return exec.Command("launchctl", "load", "-w", h.plistPath).Run()
}

func (h *launchdHost) Stop() error {
	return exec.Command("launchctl", "unload", "-w", h.plistPath).Run()
}

// systemdHost manages a per-user systemd unit.
type systemdHost struct {
	unitPath string
}

func (h *systemdHost) Install(execPath string) error {
	if err := os.MkdirAll(filepath.Dir(h.unitPath), 0o755); err != nil {
		return fmt.Errorf("daemon: failed creating systemd user dir: %w", err)
	}
	unit := fmt.Sprintf(`[Unit]
Description=agentctl job scheduler daemon

[Service]
ExecStart=%s daemon _run
Restart=on-failure

[Install]
WantedBy=default.target
`, execPath)
	if err := os.WriteFile(h.unitPath, []byte(unit), 0o644); err != nil {
		return err
	}
	return exec.Command("systemctl", "--user", "daemon-reload").Run()
}

func (h *systemdHost) Uninstall() error {
	_ = h.Stop()
	err := os.Remove(h.unitPath)
	if os.IsNotExist(err) {
		return nil
	}
	_ = exec.Command("systemctl", "--user", "daemon-reload").Run()
	return err
}

func (h *systemdHost) Start() error {
	return exec.Command("systemctl", "--user", "start", serviceLabel+".service").Run()
}

func (h *systemdHost) Stop() error {
	return exec.Command("systemctl", "--user", "stop", serviceLabel+".service").Run()
}

// detachedHost is the ServiceHost used on platforms without a known service
// manager. Install and Uninstall do nothing and Start always returns an
// error; the detached background process is spawned by Daemon.Start's
// SpawnDetached fallback, not by this type.
type detachedHost struct{}

func (detachedHost) Install(execPath string) error { return nil }
func (detachedHost) Uninstall() error              { return nil }
func (detachedHost) Start() error                  { return fmt.Errorf("daemon: no platform service host available") }
func (detachedHost) Stop() error                   { return nil }

// SpawnDetached execs execPath's hidden `daemon _run` subcommand as a
// detached child, used as Start's fallback when the native service manager
// is unavailable or fails.
func SpawnDetached(execPath string) error {
	cmd := exec.Command(execPath, "daemon", "_run")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		cmd.Stdin = devNull
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}
