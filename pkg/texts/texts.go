// Package texts stores the reading library: built-in sample texts loaded
// from disk and session-only uploads held in memory. Uploads are lost on
// restart; persistence is deliberately out of scope.
package texts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Item is one reading text, pre-split into named display parts.
type Item struct {
	Name     string            `json:"name"`
	Language string            `json:"language"`
	Parts    map[string]string `json:"parts"`
}

// Load reads built-in texts from a JSON file. Both historic formats are
// accepted: a bare array and an object with a "texts" key. A missing file
// is not an error; the library is just empty.
func Load(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("texts: read %s: %w", path, err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Texts []Item `json:"texts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("texts: parse %s: %w", path, err)
	}
	return wrapped.Texts, nil
}

// Store holds built-in and uploaded texts behind one read surface.
type Store struct {
	mu      sync.RWMutex
	builtin []Item
	uploads []Item
}

// NewStore creates a store over the built-in library.
func NewStore(builtin []Item) *Store {
	return &Store{builtin: builtin}
}

// List returns all texts for a language, built-in first, then uploads in
// arrival order.
func (s *Store) List(language string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Item
	for _, item := range s.builtin {
		if strings.EqualFold(item.Language, language) {
			out = append(out, item)
		}
	}
	for _, item := range s.uploads {
		if strings.EqualFold(item.Language, language) {
			out = append(out, item)
		}
	}
	return out
}

// Get returns the named text for a language.
func (s *Store) Get(name, language string) (Item, bool) {
	for _, item := range s.List(language) {
		if item.Name == name {
			return item, true
		}
	}
	return Item{}, false
}

// Add records a session upload.
func (s *Store) Add(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, item)
}

// UploadCount returns the number of session uploads.
func (s *Store) UploadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}
