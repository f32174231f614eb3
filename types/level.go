// Package types defines core domain types shared by the strata engines.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// CompressionLevel is an ordinal compression scale.
// Values outside [LevelNone, LevelHigh] are clamped rather than rejected.
type CompressionLevel int

// Compression levels, lowest to highest.
const (
	LevelNone CompressionLevel = iota
	LevelLow
	LevelNormal
	LevelHigh
)

// Aliases for the two upper levels.
const (
	LevelMedium = LevelNormal
	LevelMax    = LevelHigh
)

// Clamp returns the level bounded to the valid range.
func (l CompressionLevel) Clamp() CompressionLevel {
	switch {
	case l < LevelNone:
		return LevelNone
	case l > LevelHigh:
		return LevelHigh
	default:
		return l
	}
}

// String returns the canonical lowercase name of the clamped level.
func (l CompressionLevel) String() string {
	switch l.Clamp() {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelNormal:
		return "normal"
	default:
		return "high"
	}
}

// ParseLevel parses a level name or its alias.
// Empty input yields LevelNormal.
func ParseLevel(s string) (CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "store":
		return LevelNone, nil
	case "low", "min", "fast":
		return LevelLow, nil
	case "", "normal", "medium":
		return LevelNormal, nil
	case "high", "max", "best":
		return LevelHigh, nil
	default:
		return LevelNormal, fmt.Errorf("invalid compression level: %q (must be none, low, normal, or high)", s)
	}
}
