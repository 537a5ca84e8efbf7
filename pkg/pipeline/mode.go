package pipeline

import "fmt"

// Mode is the data-object spec resolution mode of a pipeline.
type Mode string

const (
	// ModeOnly requires an explicit spec for every processed object.
	ModeOnly Mode = "only"
	// ModePrefer uses a spec when present and falls back to defaults with a warning.
	ModePrefer Mode = "prefer"
	// ModeIgnore bypasses specs for database sources; staged data is authoritative on load.
	ModeIgnore Mode = "ignore"
)

// ParseMode validates a data_objects_spec_mode value. The empty string maps
// to ModeOnly.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOnly, ModePrefer, ModeIgnore:
		return Mode(s), nil
	case "":
		return ModeOnly, nil
	}
	return "", fmt.Errorf("unknown data_objects_spec_mode %q, expected only, prefer or ignore", s)
}
