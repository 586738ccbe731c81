package attendee

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadTable reads an attendee directory. The format follows the file
// extension: .json, .yaml/.yml or .toml.
func LoadTable(path string) (Table, error) {
	var t Table
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("failed to read attendee file '%s': %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &t)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &t)
	case ".toml":
		err = toml.Unmarshal(data, &t)
	default:
		return t, fmt.Errorf("unsupported attendee file format %q", ext)
	}
	if err != nil {
		return t, fmt.Errorf("failed to parse attendee file '%s': %w", path, err)
	}

	seen := make(map[string]bool)
	for _, rec := range t.Attendees {
		key := normalize(rec.PrimaryName)
		if key == "" {
			return t, fmt.Errorf("attendee with email %q has no primary_name", rec.Email)
		}
		if seen[key] {
			return t, fmt.Errorf("duplicate attendee primary_name %q", rec.PrimaryName)
		}
		seen[key] = true
	}
	return t, nil
}

// Merge appends records from other whose primary names are not already
// present. Scalar settings from t win when set.
func (t Table) Merge(other Table) Table {
	out := t
	out.Attendees = append([]Record(nil), t.Attendees...)
	have := make(map[string]bool)
	for _, rec := range t.Attendees {
		have[normalize(rec.PrimaryName)] = true
	}
	for _, rec := range other.Attendees {
		if !have[normalize(rec.PrimaryName)] {
			out.Attendees = append(out.Attendees, rec)
		}
	}
	if out.DefaultDomain == "" {
		out.DefaultDomain = other.DefaultDomain
	}
	if out.FuzzyThreshold == 0 {
		out.FuzzyThreshold = other.FuzzyThreshold
	}
	return out
}
