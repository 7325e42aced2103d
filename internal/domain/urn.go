package domain

import (
	"fmt"
	"strings"

	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

const urnPrefix = "urn:li:"

// Urn is the canonical structured identifier for an entity instance:
// urn:li:<entityType>:<key>, where key is a single part or a parenthesized
// tuple of parts. Tuple parts may themselves be urns, so parsing is
// parenthesis-aware. Urns are immutable values; the canonical string form
// is the primary key everywhere in the platform.
type Urn struct {
	entityType string
	parts      []string
	canonical  string
}

func NewUrn(entityType string, parts ...string) (Urn, error) {
	if entityType == "" {
		return Urn{}, fmt.Errorf("%w: empty entity type", pkgerrors.ErrInvalidArgument)
	}
	if len(parts) == 0 {
		return Urn{}, fmt.Errorf("%w: urn needs at least one key part", pkgerrors.ErrInvalidArgument)
	}
	for i, p := range parts {
		if p == "" {
			return Urn{}, fmt.Errorf("%w: empty key part at index %d", pkgerrors.ErrInvalidArgument, i)
		}
	}
	cp := make([]string, len(parts))
	copy(cp, parts)
	return Urn{entityType: entityType, parts: cp, canonical: canonicalize(entityType, cp)}, nil
}

// ParseUrn parses the canonical string form. The tuple splitter counts
// parenthesis depth so nested urns inside key parts survive round-tripping.
func ParseUrn(raw string) (Urn, error) {
	if !strings.HasPrefix(raw, urnPrefix) {
		return Urn{}, fmt.Errorf("%w: urn %q missing %q prefix", pkgerrors.ErrInvalidArgument, raw, urnPrefix)
	}
	rest := raw[len(urnPrefix):]
	sep := strings.IndexByte(rest, ':')
	if sep <= 0 || sep == len(rest)-1 {
		return Urn{}, fmt.Errorf("%w: urn %q missing entity type or key", pkgerrors.ErrInvalidArgument, raw)
	}
	entityType := rest[:sep]
	key := rest[sep+1:]

	var parts []string
	if strings.HasPrefix(key, "(") {
		if !strings.HasSuffix(key, ")") {
			return Urn{}, fmt.Errorf("%w: urn %q has unbalanced key tuple", pkgerrors.ErrInvalidArgument, raw)
		}
		inner := key[1 : len(key)-1]
		depth := 0
		start := 0
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth < 0 {
					return Urn{}, fmt.Errorf("%w: urn %q has unbalanced key tuple", pkgerrors.ErrInvalidArgument, raw)
				}
			case ',':
				if depth == 0 {
					parts = append(parts, inner[start:i])
					start = i + 1
				}
			}
		}
		if depth != 0 {
			return Urn{}, fmt.Errorf("%w: urn %q has unbalanced key tuple", pkgerrors.ErrInvalidArgument, raw)
		}
		parts = append(parts, inner[start:])
	} else {
		parts = []string{key}
	}
	return NewUrn(entityType, parts...)
}

// MustParseUrn panics on malformed input. Test and fixture use only.
func MustParseUrn(raw string) Urn {
	u, err := ParseUrn(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func canonicalize(entityType string, parts []string) string {
	if len(parts) == 1 && !strings.ContainsAny(parts[0], "(),") {
		return urnPrefix + entityType + ":" + parts[0]
	}
	return urnPrefix + entityType + ":(" + strings.Join(parts, ",") + ")"
}

func (u Urn) EntityType() string { return u.entityType }

func (u Urn) Parts() []string {
	cp := make([]string, len(u.parts))
	copy(cp, u.parts)
	return cp
}

func (u Urn) String() string { return u.canonical }

func (u Urn) IsZero() bool { return u.canonical == "" }

func (u Urn) Equal(other Urn) bool { return u.canonical == other.canonical }

func (u Urn) MarshalText() ([]byte, error) { return []byte(u.canonical), nil }

func (u *Urn) UnmarshalText(b []byte) error {
	parsed, err := ParseUrn(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
