// Package style renders in-text citation marks and bibliography entries for
// the supported citation styles.
package style

import (
	"errors"
	"fmt"
	"strings"
)

// Style is a closed set of citation styles. Every render site switches over
// all of them.
type Style int

const (
	Vancouver Style = iota
	APA
	Harvard
	Nature
	AMA
	NLM
	MDPI
)

// Default is used when no style has been configured.
const Default = Vancouver

// ErrInvalidStyle is returned for style names outside the supported set.
var ErrInvalidStyle = errors.New("invalid citation style")

var names = map[Style]string{
	Vancouver: "vancouver",
	APA:       "apa",
	Harvard:   "harvard",
	Nature:    "nature",
	AMA:       "ama",
	NLM:       "nlm",
	MDPI:      "mdpi",
}

// All lists the supported styles in declaration order.
func All() []Style {
	return []Style{Vancouver, APA, Harvard, Nature, AMA, NLM, MDPI}
}

// Parse resolves a style name, case-insensitively.
func Parse(name string) (Style, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, s := range All() {
		if names[s] == normalized {
			return s, nil
		}
	}
	return Default, fmt.Errorf("%w: %q", ErrInvalidStyle, name)
}

func (s Style) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("style(%d)", int(s))
}

// Numbered reports whether the style cites by sequence number rather than by
// author and year.
func (s Style) Numbered() bool {
	switch s {
	case Vancouver, Nature, AMA, NLM, MDPI:
		return true
	case APA, Harvard:
		return false
	default:
		return true
	}
}

// MarshalText lets styles travel as their names in JSON documents.
func (s Style) MarshalText() ([]byte, error) {
	if _, ok := names[s]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStyle, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Style) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
