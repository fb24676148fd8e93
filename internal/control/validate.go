package control

import (
	"errors"
	"slices"
	"strings"
)

var (
	ErrNoProfile        = errors.New("no profile specified")
	ErrInvalidProfile   = errors.New("invalid profile name")
	ErrInvalidInterface = errors.New("invalid interface")
)

// rejectMessages are the user-facing texts for validation failures.
var rejectMessages = map[error]string{
	ErrNoProfile:        "No profile specified.",
	ErrInvalidProfile:   "Invalid profile name.",
	ErrInvalidInterface: "Invalid interface.",
}

// ValidateProfileName accepts a bare file name that cannot be mistaken for
// a path or an option by the connect script.
func ValidateProfileName(name string) error {
	switch {
	case name == "":
		return ErrNoProfile
	case name == "." || name == "..":
		return ErrInvalidProfile
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidProfile
	case strings.HasPrefix(name, "-"):
		return ErrInvalidProfile
	}
	return nil
}

// ValidateInterface accepts only members of allowed.
func ValidateInterface(iface string, allowed []string) error {
	if iface == "" || !slices.Contains(allowed, iface) {
		return ErrInvalidInterface
	}
	return nil
}
