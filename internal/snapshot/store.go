package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File name prefixes of the stage hand-off artefacts.
const (
	RawMarket             = "coingecko_market_data_"
	RawHistorical         = "coingecko_historical_data_"
	TransformedMarket     = "transformed_market_data_"
	TransformedHistorical = "transformed_historical_data_"
	SchemaScript          = "schema_coingecko_"
)

const stampLayout = "20060102_150405"

// ErrNotFound is returned by Latest when no file matches the prefix.
var ErrNotFound = errors.New("no snapshot found")

// Store reads and writes the pipeline's files in one directory. File names
// end in a sortable timestamp, so the latest file for a prefix is the
// lexicographically greatest.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// SaveJSON writes v as indented JSON to <prefix><stamp>.json and returns the
// path. The write goes through a temp file so readers never see a partial
// snapshot.
func (s *Store) SaveJSON(prefix string, at time.Time, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", prefix, err)
	}
	return s.write(prefix, at, ".json", data)
}

// SaveText writes raw text, used for the schema script.
func (s *Store) SaveText(prefix string, at time.Time, ext, text string) (string, error) {
	return s.write(prefix, at, ext, []byte(text))
}

// LoadLatestJSON decodes the newest <prefix>*.json into v.
func (s *Store) LoadLatestJSON(prefix string, v any) (string, error) {
	path, err := s.Latest(prefix, ".json")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return path, nil
}

func (s *Store) Latest(prefix, ext string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s*%s in %s: %w", prefix, ext, s.dir, ErrNotFound)
		}
		return "", fmt.Errorf("list %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%s*%s in %s: %w", prefix, ext, s.dir, ErrNotFound)
	}
	sort.Strings(names)
	return filepath.Join(s.dir, names[len(names)-1]), nil
}

func (s *Store) write(prefix string, at time.Time, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(s.dir, prefix+at.UTC().Format(stampLayout)+ext)
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+prefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", path, err)
	}
	return path, nil
}
