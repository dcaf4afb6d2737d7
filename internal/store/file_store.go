package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/nhle/mailcheck/internal/model"
)

const indent = "    "

// FileStore implements Store on top of a single pretty-printed JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the settings file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the settings file. A missing file is first created with the
// default document.
func (s *FileStore) Load() (*model.Settings, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		if err := s.Save(model.DefaultSettings()); err != nil {
			return nil, fmt.Errorf("creating default settings: %w", err)
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", s.path, err)
	}

	settings := &model.Settings{}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", s.path, err)
	}

	if settings.Folders == nil {
		settings.Folders = []model.Folder{}
	}
	if settings.Subjects == nil {
		settings.Subjects = []string{}
	}

	return settings, nil
}

// Save overwrites the settings file with the whole document.
func (s *FileStore) Save(settings *model.Settings) error {
	data, err := Marshal(settings)
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing settings %s: %w", s.path, err)
	}

	return nil
}

// Marshal encodes the document the way it is stored on disk: indented
// with four spaces and with non-ASCII and HTML characters left as is.
func Marshal(settings *model.Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(settings); err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}

	// Encode terminates with a newline; the stored form has none.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
