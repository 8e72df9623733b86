package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/sirupsen/logrus"
)

// DedupStore holds the set of company links collected by earlier runs,
// persisted as a JSON array of strings. The set only grows; Persist writes
// the whole set atomically via temp-file-then-rename.
type DedupStore struct {
	path  string
	links map[string]struct{}
}

// NewDedupStore creates a store backed by the given file path. Call Load
// before querying it.
func NewDedupStore(path string) *DedupStore {
	return &DedupStore{
		path:  path,
		links: make(map[string]struct{}),
	}
}

// Load reads the persisted set. A missing or empty file yields an empty set
// (first run); a malformed file is a CORRUPT_STATE error surfaced to the
// operator rather than silently discarded.
func (s *DedupStore) Load() error {
	logger := logrus.WithFields(logrus.Fields{
		"component": "DedupStore",
		"path":      s.path,
	})

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No processed-set file found, starting with empty set")
			return nil
		}
		return shared.NewStateIOError("Load", s.path, err)
	}

	if len(content) == 0 {
		logger.Info("Processed-set file is empty, starting with empty set")
		return nil
	}

	var persisted []string
	if err := json.Unmarshal(content, &persisted); err != nil {
		return shared.NewCorruptStateError(s.path, err)
	}

	for _, link := range persisted {
		s.links[link] = struct{}{}
	}

	logger.WithField("links", len(s.links)).Info("Loaded processed set")
	return nil
}

// Contains reports whether the link was collected by an earlier run or
// already added in this one.
func (s *DedupStore) Contains(link string) bool {
	_, exists := s.links[link]
	return exists
}

// Add registers a link as processed. Adding an existing link is a no-op.
func (s *DedupStore) Add(link string) {
	s.links[link] = struct{}{}
}

// Len returns the number of links in the set.
func (s *DedupStore) Len() int {
	return len(s.links)
}

// Persist writes the full set atomically so a crash mid-write cannot corrupt
// the store. Links are sorted for stable output.
func (s *DedupStore) Persist() error {
	sorted := make([]string, 0, len(s.links))
	for link := range s.links {
		sorted = append(sorted, link)
	}
	sort.Strings(sorted)

	content, err := json.Marshal(sorted)
	if err != nil {
		return shared.NewStateIOError("Persist", s.path, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return shared.NewStateIOError("Persist", s.path, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(content); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return shared.NewStateIOError("Persist", s.path, err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return shared.NewStateIOError("Persist", s.path, err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return shared.NewStateIOError("Persist", s.path, err)
	}

	logrus.WithFields(logrus.Fields{
		"component": "DedupStore",
		"path":      s.path,
		"links":     len(sorted),
	}).Debug("Persisted processed set")

	return nil
}
