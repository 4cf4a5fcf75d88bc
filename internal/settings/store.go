package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"genieacs-portal/internal/gateway"
)

// FileStore keeps the document in a single JSON file. Writes replace the whole file; the last
// writer wins.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// EnsureDefaults writes Defaults() if the file does not exist yet.
func (s *FileStore) EnsureDefaults() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureDefaults()
}

func (s *FileStore) ensureDefaults() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("settings: stat: %w", err)
	}
	return s.write(Defaults())
}

// Load reads and validates the current document, creating it with defaults if missing.
func (s *FileStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (Settings, error) {
	if err := s.ensureDefaults(); err != nil {
		return Settings{}, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read: %w", err)
	}
	var doc Settings
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Settings{}, fmt.Errorf("%w: malformed document: %v", ErrInvalidSettings, err)
	}
	if err := doc.Validate(); err != nil {
		return Settings{}, err
	}
	return doc, nil
}

// SaveOTP validates o and replaces the OTP section.
func (s *FileStore) SaveOTP(o OTP) (Settings, error) {
	if err := o.Validate(); err != nil {
		return Settings{}, err
	}
	return s.update(func(doc *Settings) {
		doc.OTPEnabled = o.Enabled
		doc.OTPExpiry = o.Expiry
		doc.OTPLength = o.Length
		doc.OTPMessage = o.Message
		doc.AdminWhatsapp = o.AdminWhatsapp
	})
}

// SaveGateway validates provider and replaces the gateway selection and credentials.
func (s *FileStore) SaveGateway(provider gateway.Provider, gateways gateway.Gateways) (Settings, error) {
	if err := validateProvider(provider); err != nil {
		return Settings{}, err
	}
	return s.update(func(doc *Settings) {
		doc.WhatsappGateway = provider
		doc.Gateways = gateways
	})
}

func (s *FileStore) update(apply func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Settings{}, err
	}
	apply(&doc)
	if err := s.write(doc); err != nil {
		return Settings{}, err
	}
	return doc, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(doc Settings) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}
