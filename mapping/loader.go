package mapping

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var embeddedProfiles embed.FS

// ProfileRegistry holds loaded profiles.
type ProfileRegistry struct {
	profiles map[string]*Profile
}

// NewProfileRegistry creates a new profile registry with embedded profiles loaded.
// An embedded profile that fails to parse or validate is an error.
func NewProfileRegistry() (*ProfileRegistry, error) {
	r := &ProfileRegistry{
		profiles: make(map[string]*Profile),
	}

	entries, err := embeddedProfiles.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading embedded profiles: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := embeddedProfiles.ReadFile("profiles/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded profile %s: %w", entry.Name(), err)
		}

		profile, err := parseProfile(data)
		if err != nil {
			return nil, fmt.Errorf("embedded profile %s: %w", entry.Name(), err)
		}

		// Use filename without extension as profile name if not set
		if profile.Name == "" {
			profile.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		if err := profile.Validate(); err != nil {
			return nil, err
		}
		r.profiles[profile.Name] = profile
	}

	return r, nil
}

// DefaultProfileDir returns ~/.sarpras/profiles, where user overrides live.
func DefaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sarpras", "profiles")
}

// LoadProfile loads a profile from a file path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	profile, err := parseProfile(data)
	if err != nil {
		return nil, err
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return profile, nil
}

// LoadProfileFromString loads a profile from YAML content.
func LoadProfileFromString(content string) (*Profile, error) {
	return parseProfile([]byte(content))
}

func parseProfile(data []byte) (*Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parsing profile YAML: %w", err)
	}
	return &profile, nil
}

// Get retrieves a profile by name.
func (r *ProfileRegistry) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// MustGet retrieves a profile by name or returns a descriptive error.
func (r *ProfileRegistry) MustGet(name string) (*Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(r.List(), ", "))
	}
	return p, nil
}

// Register adds a profile to the registry.
func (r *ProfileRegistry) Register(profile *Profile) {
	r.profiles[profile.Name] = profile
}

// List returns all registered profile names, sorted.
func (r *ProfileRegistry) List() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromDirectory loads all profiles from a directory. A profile whose
// name matches a registered one is merged over it, so an override file
// only needs the fields it changes. A missing directory is not an error.
func (r *ProfileRegistry) LoadFromDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading profile directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !(strings.HasSuffix(entry.Name(), ".yaml") || strings.HasSuffix(entry.Name(), ".yml")) {
			continue
		}

		profile, err := LoadProfile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if err := r.Overlay(profile); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}

	return nil
}

// Overlay registers profile, merging it over an existing profile of the
// same name, and validates the result.
func (r *ProfileRegistry) Overlay(profile *Profile) error {
	if base, ok := r.profiles[profile.Name]; ok {
		profile = MergeProfiles(base, profile)
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	r.profiles[profile.Name] = profile
	return nil
}

// MergeProfiles merges a custom profile over a base profile.
// Custom fields override base fields.
func MergeProfiles(base, custom *Profile) *Profile {
	merged := &Profile{
		Name:        custom.Name,
		Entity:      custom.Entity,
		Description: custom.Description,
		Table:       custom.Table,
		ConflictKey: custom.ConflictKey,
		OwnerKey:    custom.OwnerKey,
		Fragment:    custom.Fragment || base.Fragment,
		Fields:      make(map[string]FieldMapping),
	}

	if merged.Entity == "" {
		merged.Entity = base.Entity
	}
	if merged.Description == "" {
		merged.Description = base.Description
	}
	if merged.Table == "" {
		merged.Table = base.Table
	}
	if merged.ConflictKey == "" {
		merged.ConflictKey = base.ConflictKey
	}
	if merged.OwnerKey == "" {
		merged.OwnerKey = base.OwnerKey
	}

	for k, v := range base.Fields {
		merged.Fields[k] = v
	}
	for k, v := range custom.Fields {
		merged.Fields[k] = v
	}

	return merged
}
