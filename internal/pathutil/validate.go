// Package pathutil provides path checks and file-name derivation shared by the
// resolution pipeline.
package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/simwrap/internal/constants"
)

var (
	// ErrNotFound reports that a required input file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrNotReadable reports that an input exists but cannot be read as a file.
	ErrNotReadable = errors.New("file not readable")
)

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.simwrap/config.yaml" becomes ".../.simwrap/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// CheckReadable is the pre-flight check run before any file is parsed. It
// separates "missing" (ErrNotFound) from "present but unusable"
// (ErrNotReadable) so that parse failures can be reported on their own.
func CheckReadable(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrNotFound)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrNotReadable, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotReadable, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotReadable, path, err)
	}
	return f.Close()
}

// SplitExt splits a base file name into stem and extension. A trailing ".gz"
// is kept together with the extension before it, so "plans.xml.gz" yields
// ("plans", ".xml.gz"). Only the last extension is split off otherwise, so
// extra dots in the stem survive: "my.plans.xml" yields ("my.plans", ".xml").
func SplitExt(name string) (stem, ext string) {
	base := filepath.Base(name)
	if strings.HasSuffix(base, ".gz") {
		inner := strings.TrimSuffix(base, ".gz")
		innerExt := filepath.Ext(inner)
		if innerExt != "" && innerExt != inner {
			return strings.TrimSuffix(inner, innerExt), innerExt + ".gz"
		}
		return inner, ".gz"
	}
	ext = filepath.Ext(base)
	if ext == base {
		// dot files such as ".plans" have no extension
		return base, ""
	}
	return strings.TrimSuffix(base, ext), ext
}

// InsertSuffix returns name with suffix inserted between its stem and
// extension, keeping the directory part.
func InsertSuffix(name, suffix string) string {
	stem, ext := SplitExt(name)
	return filepath.Join(filepath.Dir(name), stem+suffix+ext)
}

// ValidatePath checks that a file path is within one of the allowed directories.
// It resolves symlinks, cleans the path, and rejects traversal attempts.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path validation failed: path is empty")
	}

	if len(allowedDirs) == 0 {
		return fmt.Errorf("path validation failed: no allowed directories configured")
	}

	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	cleaned := filepath.Clean(path)
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// The file itself may already be gone, so only the parent is resolved.
	dir := filepath.Dir(absPath)
	resolvedDir, err := resolveExistingParent(dir)
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}

	resolvedPath := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExistingParent(allowedAbs)
		if err != nil {
			continue
		}

		if isSubpath(resolvedPath, allowedResolved) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(absPath))
}

// resolveExistingParent walks up the directory tree to find the deepest existing
// ancestor, resolves symlinks on it, then re-appends the non-existent tail.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath checks whether path is equal to or a subdirectory of base.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// "/tmp/foo" must not match "/tmp/foobar"
	prefix := base + string(os.PathSeparator)
	return strings.HasPrefix(path, prefix)
}

// StateDir returns the per-user state directory (~/.simwrap).
func StateDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.StateDirName), nil
}
