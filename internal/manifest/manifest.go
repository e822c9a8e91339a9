// Package manifest loads, validates, and writes back the persisted
// cross-type item lists used to scope transfer operations.
//
// A manifest holds one section per artifact type, mapping remote ids to
// {name, path} entries. Sections are mutated in memory as a batch runs
// and written back exactly once per top-level operation; a save failure
// is advisory and never invalidates the transfer outcome already
// reported.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
)

// Sentinel errors for manifest validation. Both are fatal batch-level
// conditions raised before any transfer begins.
var (
	// ErrNoArtifacts is returned when the manifest has no section
	// compatible with the tenant tier.
	ErrNoArtifacts = errors.New("the manifest did not contain any artifacts")

	// ErrIncompatibleTypes is returned when the manifest references an
	// artifact type the tenant tier forbids, even if compatible sections
	// also exist.
	ErrIncompatibleTypes = errors.New("the manifest contains artifact types that are not valid for this tenant")
)

// Entry is one manifest item reference.
type Entry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// document is the on-disk YAML shape.
type document struct {
	Sections map[string]map[string]Entry `yaml:"sections"`
}

// Coordinator owns one manifest for the duration of one operation.
type Coordinator struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Initialize loads and parses the manifest. A load failure fails the
// whole operation.
func Initialize(path string) (*Coordinator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if doc.Sections == nil {
		doc.Sections = make(map[string]map[string]Entry)
	}

	return &Coordinator{path: path, doc: doc}, nil
}

// New creates an empty manifest coordinator that will be written to path.
// Used when an operation builds a manifest from its outcome.
func New(path string) *Coordinator {
	return &Coordinator{
		path: path,
		doc:  document{Sections: make(map[string]map[string]Entry)},
	}
}

// Validate checks the manifest against the tenant tier. Incompatible
// sections are rejected even when compatible sections exist; a manifest
// with zero compatible sections is rejected as empty.
func (c *Coordinator) Validate(tier artifact.Tier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	compatible := 0
	for typeName, section := range c.doc.Sections {
		if len(section) == 0 {
			continue
		}
		if !tier.Allows(typeName) {
			return fmt.Errorf("%w: %s", ErrIncompatibleTypes, typeName)
		}
		compatible++
	}
	if compatible == 0 {
		return ErrNoArtifacts
	}
	return nil
}

// Section returns a copy of the id->entry map for one type, or nil when
// the manifest has no section for it.
func (c *Coordinator) Section(typeName string) map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	section, ok := c.doc.Sections[typeName]
	if !ok {
		return nil
	}
	out := make(map[string]Entry, len(section))
	for id, entry := range section {
		out[id] = entry
	}
	return out
}

// TypeNames returns the types the manifest has non-empty sections for.
func (c *Coordinator) TypeNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for typeName, section := range c.doc.Sections {
		if len(section) > 0 {
			names = append(names, typeName)
		}
	}
	return names
}

// SetEntry records a successfully transferred item in the section for
// its type, creating the section on first use.
func (c *Coordinator) SetEntry(typeName string, item artifact.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	section, ok := c.doc.Sections[typeName]
	if !ok {
		section = make(map[string]Entry)
		c.doc.Sections[typeName] = section
	}
	section[item.Key()] = Entry{Name: item.Name, Path: item.Path}
}

// RemoveEntry drops one item from a section, removing the section when
// it becomes empty (delete-on-zero).
func (c *Coordinator) RemoveEntry(typeName, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	section, ok := c.doc.Sections[typeName]
	if !ok {
		return
	}
	delete(section, id)
	if len(section) == 0 {
		delete(c.doc.Sections, typeName)
	}
}

// Save writes the manifest back to disk. Called exactly once per
// top-level operation, after all per-type batches complete; the caller
// logs a failure instead of propagating it.
func (c *Coordinator) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := yaml.Marshal(&c.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save manifest %s: %w", c.path, err)
	}
	return nil
}
