// Package manifest records every remote resource a run needs and where it
// lives on disk, keyed by kind, state and year.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind names a source family.
type Kind string

// Source kinds.
const (
	KindMOVS   Kind = "movs"
	KindState  Kind = "state"
	KindCounty Kind = "county"
	KindPUMA   Kind = "puma"
	KindBlock  Kind = "block"
	KindRoad   Kind = "road"
	KindACS    Kind = "acs"
	KindLODES  Kind = "lodes"
)

// Status is the retrieval state of an entry.
type Status string

// Entry statuses.
const (
	StatusPending Status = "pending"
	StatusFetched Status = "fetched"
	StatusFailed  Status = "failed"
)

// Entry is one remote resource.
type Entry struct {
	Kind      Kind   `yaml:"kind"`
	StateFIPS int    `yaml:"state_fips,omitempty"`
	CountyID  string `yaml:"county_id,omitempty"`
	Year      int    `yaml:"year,omitempty"`
	URL       string `yaml:"url"`
	Path      string `yaml:"path"`
	Status    Status `yaml:"status"`
	Error     string `yaml:"error,omitempty"`
}

// Key uniquely identifies the entry within a manifest.
func (e Entry) Key() string {
	return fmt.Sprintf("%s/%02d/%d/%s", e.Kind, e.StateFIPS, e.Year, e.CountyID)
}

// Manifest is the set of entries for a run. It is safe for concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	entries []Entry
	byKey   map[string]int
}

type document struct {
	Entries []Entry `yaml:"entries"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{byKey: make(map[string]int)}
}

// Add inserts entries, replacing any with the same key. New entries start
// pending; an entry re-added with an unchanged URL and path keeps its status.
func (m *Manifest) Add(entries ...Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if i, ok := m.byKey[e.Key()]; ok {
			old := m.entries[i]
			if e.Status == "" && old.URL == e.URL && old.Path == e.Path {
				e.Status, e.Error = old.Status, old.Error
			}
			if e.Status == "" {
				e.Status = StatusPending
			}
			m.entries[i] = e
			continue
		}
		if e.Status == "" {
			e.Status = StatusPending
		}
		m.byKey[e.Key()] = len(m.entries)
		m.entries = append(m.entries, e)
	}
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Entries returns a copy of every entry in insertion order.
func (m *Manifest) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

// Lookup returns the entries of kind for a state and year. A zero state or
// year matches any value.
func (m *Manifest) Lookup(kind Kind, stateFIPS, year int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Kind != kind {
			continue
		}
		if stateFIPS != 0 && e.StateFIPS != stateFIPS {
			continue
		}
		if year != 0 && e.Year != year {
			continue
		}
		out = append(out, e)
	}
	return out
}

// States returns the distinct states that have entries of kind, ascending.
func (m *Manifest) States(kind Kind) []int {
	seen := map[int]bool{}
	var out []int
	for _, e := range m.Lookup(kind, 0, 0) {
		if e.StateFIPS != 0 && !seen[e.StateFIPS] {
			seen[e.StateFIPS] = true
			out = append(out, e.StateFIPS)
		}
	}
	sort.Ints(out)
	return out
}

// Mark records the retrieval outcome of the entry with key.
func (m *Manifest) Mark(key string, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byKey[key]
	if !ok {
		return
	}
	if fetchErr != nil {
		m.entries[i].Status = StatusFailed
		m.entries[i].Error = fetchErr.Error()
		return
	}
	m.entries[i].Status = StatusFetched
	m.entries[i].Error = ""
}

// Save writes the manifest as YAML.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := yaml.Marshal(document{Entries: m.entries})
	m.mu.RUnlock()
	if err != nil {
		return eris.Wrap(err, "manifest: marshal")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "manifest: create dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "manifest: write")
	}
	return eris.Wrap(os.Rename(tmp, path), "manifest: rename")
}

// Load reads a manifest written by Save.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "manifest: unmarshal")
	}
	m := New()
	m.Add(doc.Entries...)
	return m, nil
}
