package stance

import (
	"fmt"
	"strings"

	"github.com/wilhg/summon/pkg/tool"
)

// Variant selects the catalog a session exposes.
type Variant string

const (
	// Minimal exposes only summon.
	Minimal Variant = "minimal"
	// Extended exposes summon, alter_state and ritual.
	Extended Variant = "extended"
)

// DefaultVariant is served when no catalog is configured.
const DefaultVariant = Extended

// ParseVariant accepts a variant name case-insensitively; "" selects the default.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultVariant, nil
	case Minimal:
		return Minimal, nil
	case Extended:
		return Extended, nil
	default:
		return "", fmt.Errorf("unknown catalog variant %q (want %s or %s)", s, Minimal, Extended)
	}
}

// Kinds returns the tools of the variant in registration order.
func (v Variant) Kinds() []Kind {
	switch v {
	case Minimal:
		return []Kind{Summon}
	default:
		return All
	}
}

// NewRegistry builds and seals a fresh registry for one session.
func NewRegistry(v Variant) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	for _, k := range v.Kinds() {
		if err := reg.Register(k.Definition()); err != nil {
			return nil, fmt.Errorf("register %s: %w", k, err)
		}
	}
	reg.Seal()
	return reg, nil
}
