package ruleset

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed classic.yaml
var classicYAML []byte

//go:embed extended.yaml
var extendedYAML []byte

var (
	classicOnce  sync.Once
	classicRS    *Ruleset
	extendedOnce sync.Once
	extendedRS   *Ruleset
)

// Classic returns the embedded classic profile: 17 actions, 12 materials,
// 22 achievements.
func Classic() *Ruleset {
	classicOnce.Do(func() {
		rs, err := FromBytes(classicYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded classic profile: %v", err))
		}
		classicRS = rs
	})
	return classicRS
}

// Extended returns the embedded extended profile, a strict superset of
// classic: every classic index is preserved and a diamond tool tier plus
// ruby ore are appended.
func Extended() *Ruleset {
	extendedOnce.Do(func() {
		rs, err := FromBytes(extendedYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded extended profile: %v", err))
		}
		extendedRS = rs
	})
	return extendedRS
}

// ByName resolves the embedded profiles. An empty name means classic.
func ByName(name string) (*Ruleset, error) {
	switch name {
	case "", "classic":
		return Classic(), nil
	case "extended":
		return Extended(), nil
	}
	return nil, fmt.Errorf("unknown ruleset %q", name)
}

// Load reads and validates an external profile.
func Load(path string) (*Ruleset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := FromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// FromBytes parses and validates a profile. The digest covers the raw
// bytes, so byte-identical profiles always share a digest.
func FromBytes(raw []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("ruleset: %w", err)
	}
	rs.buildIndexes()
	if err := rs.validate(); err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", rs.Name, err)
	}
	sum := sha256.Sum256(raw)
	rs.Digest = hex.EncodeToString(sum[:])
	return &rs, nil
}
