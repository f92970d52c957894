package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile describes the speaker/addressee framing and style guidance fed
// to the correction prompt for one bot persona.
type Profile struct {
	Name       string `yaml:"name"`
	Speaker    string `yaml:"speaker"`
	Addressee  string `yaml:"addressee"`
	StyleNotes string `yaml:"styleNotes"`
}

// LoadFromDirectory loads persona profiles from YAML files in a directory.
// Files must have a .yaml or .yml extension. Unreadable or malformed files
// are skipped with a warning.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]Profile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("persona directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read persona dir: %w", err)
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read persona file", "path", path, "err", err)
			continue
		}

		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			logger.Warn("cannot parse persona file", "path", path, "err", err)
			continue
		}

		if p.Name == "" {
			p.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}

		logger.Info("loaded persona", "name", p.Name, "path", path)
		profiles = append(profiles, p)
	}

	return profiles, nil
}

// Find returns the profile with the given name, or nil.
func Find(profiles []Profile, name string) *Profile {
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i]
		}
	}
	return nil
}
