package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// renameWithCollision renames path to <orderNumber>.pdf inside its own
// directory. When the target name is taken by another file, a numeric
// suffix is appended. A file that already carries the target name is
// left alone.
func renameWithCollision(path, orderNumber string) (string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".pdf"
	}

	name := orderNumber + ext
	target := filepath.Join(dir, name)
	if target == path {
		return path, nil
	}

	for i := 2; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		} else if err != nil {
			return "", fmt.Errorf("probing rename target: %w", err)
		}
		if i > 10000 {
			return "", fmt.Errorf("too many files named %s in %s", name, dir)
		}
		target = filepath.Join(dir, fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), i, ext))
	}

	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("renaming %s: %w", path, err)
	}
	return target, nil
}
