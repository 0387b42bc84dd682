package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxNameCollisions = 1000

// SaveScreenshot writes png under <ScreenshotDir>/<name>/ and returns its path.
// Files are named <name>_<yyyyMMdd_HHmmss>_step<N>.png; a numeric suffix is
// added when that name is already taken.
func (s *Store) SaveScreenshot(configName string, stepNumber int, png []byte) (string, error) {
	name := SanitizeName(configName)
	dir := filepath.Join(s.ScreenshotDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure screenshot dir: %w", err)
	}
	base := fmt.Sprintf("%s_%s_step%d", name, s.now().Format("20060102_150405"), stepNumber)
	for i := 0; i < maxNameCollisions; i++ {
		file := base + ".png"
		if i > 0 {
			file = fmt.Sprintf("%s_%d.png", base, i)
		}
		path := filepath.Join(dir, file)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create screenshot: %w", err)
		}
		if _, err := f.Write(png); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write screenshot: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close screenshot: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("too many screenshots named %s", base)
}

// ReadScreenshot returns the bytes of a stored screenshot. Paths outside the
// screenshot directory are refused.
func (s *Store) ReadScreenshot(path string) ([]byte, error) {
	rel, err := filepath.Rel(s.ScreenshotDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return nil, fmt.Errorf("screenshot %q is outside %s: %w", path, s.ScreenshotDir, fs.ErrNotExist)
	}
	return os.ReadFile(path)
}

func (s *Store) removeScreenshots(paths []string) {
	dirs := map[string]struct{}{}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
}

// SanitizeName maps a configuration name to a safe file name component.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
