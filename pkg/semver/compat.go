// Package semver checks the protocol version announced by a backend against the
// version range a client accepts.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:compat"

// ErrIncompatible is returned when a backend version falls outside the accepted range.
var ErrIncompatible = errors.New("incompatible backend version")

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a range is just a major version number (e.g. "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(strings.TrimSpace(rangeStr))
}

// Satisfies reports whether version matches rangeStr. A major-only range matches
// every version of that major. An empty range matches everything.
func Satisfies(rangeStr, version string) (bool, error) {
	rangeStr = strings.TrimSpace(rangeStr)
	if rangeStr == "" {
		return true, nil
	}

	v, err := masterminds.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false, fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}

	if IsMajorOnly(rangeStr) {
		major, _ := strconv.ParseUint(rangeStr, 10, 64)
		return v.Major() == major, nil
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false, fmt.Errorf("%s - invalid range %q: %w", logPrefix, rangeStr, err)
	}
	return constraint.Check(v), nil
}

// CheckCompatible returns ErrIncompatible when version does not satisfy rangeStr,
// or a parse error when either side is malformed.
func CheckCompatible(rangeStr, version string) error {
	ok, err := Satisfies(rangeStr, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s - %w: %s does not satisfy %s", logPrefix, ErrIncompatible, version, rangeStr)
	}
	return nil
}
