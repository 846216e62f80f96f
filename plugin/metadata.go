package plugin

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

var (
	// ErrInvalidMetadata is returned for a plugin without a name or with a malformed version
	ErrInvalidMetadata = errors.New("invalid plugin metadata")

	// ErrIncompatibleAPI is returned when a plugin requires an API the host does not provide
	ErrIncompatibleAPI = errors.New("incompatible host api version")
)

// LoadPriority orders plugins at load time. Higher priorities load first.
type LoadPriority int8

const (
	Lowest LoadPriority = iota
	Low
	Medium
	High
	Highest
)

func (p LoadPriority) String() string {
	switch p {
	case Lowest:
		return "lowest"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Highest:
		return "highest"
	default:
		return fmt.Sprintf("LoadPriority(%d)", int8(p))
	}
}

// Metadata describes a plugin to its host.
// Versions are semantic versions with or without a leading "v".
type Metadata struct {
	Name               string
	Author             string
	Description        string
	Version            string
	RequiredAPIVersion string
	Priority           LoadPriority
}

// Validate checks the name and both versions
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if !semver.IsValid(canonical(m.Version)) {
		return fmt.Errorf("%w: %s: version %q", ErrInvalidMetadata, m.Name, m.Version)
	}
	if m.RequiredAPIVersion != "" && !semver.IsValid(canonical(m.RequiredAPIVersion)) {
		return fmt.Errorf("%w: %s: required api version %q", ErrInvalidMetadata, m.Name, m.RequiredAPIVersion)
	}
	return nil
}

// CompatibleWith reports whether a host exposing apiVersion can load the plugin.
// The major versions must match and the host must not be older than required.
// A plugin without a required version is compatible with any host.
func (m Metadata) CompatibleWith(apiVersion string) bool {
	if m.RequiredAPIVersion == "" {
		return true
	}
	host, req := canonical(apiVersion), canonical(m.RequiredAPIVersion)
	if !semver.IsValid(host) || !semver.IsValid(req) {
		return false
	}
	return semver.Major(host) == semver.Major(req) && semver.Compare(host, req) >= 0
}

// canonical adds the "v" prefix x/mod/semver expects
func canonical(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
