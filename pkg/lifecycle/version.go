package lifecycle

import (
	"fmt"
	"strconv"
)

// InitialVersion is the version every new document starts at.
const InitialVersion = "01.00"

const maxComponent = 99

// Version is a parsed MM.mm identifier.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses a strictly formatted "MM.mm" string.
func ParseVersion(s string) (Version, error) {
	if len(s) != 5 || s[2] != '.' {
		return Version{}, fmt.Errorf("version %q is not in MM.mm form", s)
	}
	major, err := parseComponent(s[:2])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: major: %w", s, err)
	}
	minor, err := parseComponent(s[3:])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: minor: %w", s, err)
	}
	return Version{Major: major, Minor: minor}, nil
}

func parseComponent(s string) (int, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
	}
	return strconv.Atoi(s)
}

func (v Version) String() string {
	return fmt.Sprintf("%02d.%02d", v.Major, v.Minor)
}

// Less orders versions by (major, minor).
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Next returns the version following v for the given change type.
func (v Version) Next(changeType ChangeType) (Version, error) {
	switch changeType {
	case ChangeMinor:
		if v.Minor >= maxComponent {
			return Version{}, &VersionOverflowError{Current: v.String(), ChangeType: changeType}
		}
		return Version{Major: v.Major, Minor: v.Minor + 1}, nil
	case ChangeMajor:
		if v.Major >= maxComponent {
			return Version{}, &VersionOverflowError{Current: v.String(), ChangeType: changeType}
		}
		return Version{Major: v.Major + 1}, nil
	default:
		return Version{}, &ValidationError{Field: "changeType", Rule: RuleInvalid}
	}
}

// NextVersion computes the identifier following current.
//
//	NextVersion("01.09", ChangeMinor) == "01.10"
//	NextVersion("01.99", ChangeMajor) == "02.00"
//	NextVersion("01.99", ChangeMinor) -> *VersionOverflowError
func NextVersion(current string, changeType ChangeType) (string, error) {
	v, err := ParseVersion(current)
	if err != nil {
		return "", &ValidationError{Field: "version", Rule: RuleInvalid}
	}
	next, err := v.Next(changeType)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}
