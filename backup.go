package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupManager copies originals into a date-partitioned tree before
// any rename touches them. A backup only counts once the copy has been
// verified against the source.
type BackupManager struct {
	// Root of the backup tree. One subdirectory per day is created
	// beneath it.
	Root string
}

// Backup copies path into today's backup directory and returns the
// backup path. Name collisions within a day get a numeric suffix.
// On verification failure the partial copy is removed and the error
// wraps ErrBackupVerification.
func (m *BackupManager) Backup(path string) (string, error) {
	dir := filepath.Join(m.Root, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	dest, err := collisionFreePath(dir, filepath.Base(path))
	if err != nil {
		return "", err
	}

	if err := copyFile(path, dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %v", ErrBackupVerification, err)
	}
	if err := verifyCopy(path, dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %v", ErrBackupVerification, err)
	}
	return dest, nil
}

// collisionFreePath returns dir/name, or dir/name_2, dir/name_3 and so
// on when earlier backups of the same day already took the name.
func collisionFreePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for i := 2; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("probing backup path: %w", err)
		}
		if i > 10000 {
			return "", fmt.Errorf("too many backups named %s in %s", name, dir)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// verifyCopy confirms the backup is a complete copy of the source.
func verifyCopy(src, dest string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	destInfo, err := os.Stat(dest)
	if err != nil {
		return err
	}
	if srcInfo.Size() != destInfo.Size() {
		return fmt.Errorf("size mismatch: source %d bytes, backup %d bytes", srcInfo.Size(), destInfo.Size())
	}
	return nil
}
