package updater

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// BinaryInstaller replaces the running host binary with a downloaded payload.
type BinaryInstaller struct {
	// Target is the binary to replace. Empty means os.Executable().
	Target string
	// Restart is handed the installed binary path. It must arrange for the
	// current process to exit and the new binary to start. Defaults to
	// Relaunch, which starts the new binary immediately.
	Restart func(path string) error
}

// Apply installs payloadPath over the target and restarts into it.
func (i *BinaryInstaller) Apply(_ context.Context, payloadPath string) error {
	target, err := i.target()
	if err != nil {
		return err
	}
	if err := ReplaceBinary(target, payloadPath); err != nil {
		return err
	}
	log.Infof("[update] installed new binary at %s", target)

	restart := i.Restart
	if restart == nil {
		restart = Relaunch
	}
	if err := restart(target); err != nil {
		return fmt.Errorf("relaunch: %w", err)
	}
	return nil
}

// Stage installs payloadPath over the target without relaunching. Used when
// the host quits with an update ready.
func (i *BinaryInstaller) Stage(payloadPath string) error {
	target, err := i.target()
	if err != nil {
		return err
	}
	if err := ReplaceBinary(target, payloadPath); err != nil {
		return err
	}
	log.Infof("[update] staged new binary at %s for next launch", target)
	return nil
}

func (i *BinaryInstaller) target() (string, error) {
	if i.Target != "" {
		return i.Target, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

// Relaunch starts path detached with the current process arguments.
func Relaunch(path string) error {
	cmd := exec.Command(path, os.Args[1:]...)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// ReplaceBinary atomically replaces a binary at destPath with a new binary at newPath.
func ReplaceBinary(destPath, newPath string) error {
	destPath, err := filepath.EvalSymlinks(destPath)
	if err != nil {
		return fmt.Errorf("resolve symlink: %w", err)
	}

	bakPath := destPath + ".bak"

	// Remove any stale backup
	os.Remove(bakPath)

	if err := os.Rename(destPath, bakPath); err != nil {
		return fmt.Errorf("backup old binary: %w", err)
	}

	if err := os.Rename(newPath, destPath); err != nil {
		// Try to restore backup
		_ = os.Rename(bakPath, destPath)
		return fmt.Errorf("install new binary: %w", err)
	}

	os.Remove(bakPath)

	return nil
}
