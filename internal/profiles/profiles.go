// Package profiles manages the directory of uploaded VPN client profiles.
package profiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Recognized profile suffixes, in listing order.
const (
	ExtWireGuard = ".conf"
	ExtOpenVPN   = ".ovpn"
)

var (
	ErrExtension = errors.New("only .conf and .ovpn files allowed")
	ErrTooLarge  = errors.New("profile too large")
)

// Store is a profile directory.
type Store struct {
	Dir string
}

// List returns the profile file names: .conf names sorted, then .ovpn names
// sorted. Hidden files, directories and other suffixes are skipped. A missing
// directory yields an empty, non-nil list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return []string{}, fmt.Errorf("read profile dir: %w", err)
	}

	var wg, ovpn []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !e.Type().IsRegular() {
			continue
		}
		switch {
		case hasStem(name, ExtWireGuard):
			wg = append(wg, name)
		case hasStem(name, ExtOpenVPN):
			ovpn = append(ovpn, name)
		}
	}
	slices.Sort(wg)
	slices.Sort(ovpn)
	return append(append([]string{}, wg...), ovpn...), nil
}

// SanitizeName reduces a client-supplied filename to its base name and
// checks its suffix.
func SanitizeName(name string) (string, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if strings.ContainsFunc(name, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return "", ErrExtension
	}
	if strings.HasPrefix(name, ".") {
		return "", ErrExtension
	}
	if !hasStem(name, ExtWireGuard) && !hasStem(name, ExtOpenVPN) {
		return "", ErrExtension
	}
	return name, nil
}

func hasStem(name, ext string) bool {
	return len(name) > len(ext) && strings.HasSuffix(name, ext)
}

// Save stores r under the sanitized name with owner-only permissions,
// replacing any existing profile atomically. Reading more than max bytes
// fails with ErrTooLarge and leaves no file behind.
func (s *Store) Save(name string, r io.Reader, max int64) (string, error) {
	name, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod profile: %w", err)
	}
	n, err := io.Copy(tmp, io.LimitReader(r, max+1))
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("write profile: %w", err)
	}
	if n > max {
		tmp.Close()
		return "", ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close profile: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		return "", fmt.Errorf("store profile: %w", err)
	}
	return name, nil
}
