// Package cassette implements content-addressed recording and replay of LLM
// request/response pairs. One store per session; entries are append-only and
// the on-disk format is YAML with stable field ordering so recordings diff
// cleanly in review.
package cassette

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ResponsePayload is the recorded LLM response.
type ResponsePayload struct {
	Value            string  `yaml:"value"`
	Rationale        string  `yaml:"rationale,omitempty"`
	Confidence       float64 `yaml:"confidence,omitempty"`
	PromptTokens     int     `yaml:"prompt_tokens,omitempty"`
	CompletionTokens int     `yaml:"completion_tokens,omitempty"`
	CachedTokens     int     `yaml:"cached_tokens,omitempty"`
	CostUSD          float64 `yaml:"cost_usd,omitempty"`
}

// Entry is one recorded request/response pair. Attempt disambiguates
// re-recordings of the same fingerprint; prior attempts are preserved for
// inspection and Get resolves to the highest attempt.
type Entry struct {
	Fingerprint string          `yaml:"fingerprint"`
	Attempt     int             `yaml:"attempt"`
	Request     RequestSummary  `yaml:"request"`
	Response    ResponsePayload `yaml:"response"`
	RecordedAt  time.Time       `yaml:"recorded_at"`
}

type fileDoc struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

const fileVersion = 1

// Store is a per-session cassette. Safe for the engine's strictly sequential
// access pattern; no cross-session locking is needed.
type Store struct {
	path    string
	entries []Entry
	latest  map[string]int // fingerprint -> index of highest attempt
	now     func() time.Time
}

// Open loads the cassette at path, creating an empty store if the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   strings.TrimSpace(path),
		latest: map[string]int{},
		now:    time.Now,
	}
	if s.path == "" {
		return nil, fmt.Errorf("cassette path is required")
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read cassette %s: %w", s.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode cassette %s: %w", s.path, err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("cassette %s: unsupported version %d", s.path, doc.Version)
	}
	s.entries = doc.Entries
	for i, e := range s.entries {
		if idx, ok := s.latest[e.Fingerprint]; !ok || s.entries[idx].Attempt < e.Attempt {
			s.latest[e.Fingerprint] = i
		}
	}
	return s, nil
}

// Len returns the number of recorded entries, counting every attempt.
func (s *Store) Len() int { return len(s.entries) }

// Get returns the most recently recorded response for the fingerprint.
func (s *Store) Get(fingerprint string) (ResponsePayload, bool) {
	idx, ok := s.latest[fingerprint]
	if !ok {
		return ResponsePayload{}, false
	}
	return s.entries[idx].Response, true
}

// Put appends a new recording. Existing entries for the same fingerprint are
// never overwritten; the new entry gets the next attempt number.
func (s *Store) Put(req RequestSummary, resp ResponsePayload) error {
	fp := Fingerprint(req)
	attempt := 1
	if idx, ok := s.latest[fp]; ok {
		attempt = s.entries[idx].Attempt + 1
	}
	s.entries = append(s.entries, Entry{
		Fingerprint: fp,
		Attempt:     attempt,
		Request:     req,
		Response:    resp,
		RecordedAt:  s.now().UTC(),
	})
	s.latest[fp] = len(s.entries) - 1
	return s.save()
}

func (s *Store) save() error {
	doc := fileDoc{Version: fileVersion, Entries: s.entries}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, b, 0o644)
}

// Discover lists cassette files under root, recursively.
func Discover(root string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(root, "**", "*.cassette.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
