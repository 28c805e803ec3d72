// Package credstore persists the account document as a single JSON file.
// Every save replaces the whole document; there is no merging with
// on-disk content.
package credstore

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"github.com/tokenkeeper/tokenkeeper/internal/logging"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
)

// Store reads and writes the credentials document.
type Store struct {
	path       string
	backupPath string
	logger     *logging.Logger
}

// New creates a store bound to path. The backup lives alongside the
// primary file; exactly one backup generation is kept.
func New(path, backupPath string, logger *logging.Logger) *Store {
	if backupPath == "" {
		backupPath = path + ".backup"
	}
	return &Store{path: path, backupPath: backupPath, logger: logger}
}

// Path returns the primary file path.
func (s *Store) Path() string {
	return s.path
}

// BackupPath returns the effective backup location.
func (s *Store) BackupPath() string {
	return s.backupPath
}

// Load reads and validates the document. A document that fails
// validation is never returned, partial data included.
func (s *Store) Load() (*models.Document, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrCredentialsNotFound{Path: s.path}
		}
		return nil, &errors.ErrFileRead{Path: s.path, Err: err}
	}

	var doc models.Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, &errors.ErrCredentialsParse{Path: s.path, Err: err}
	}

	if err := validateDocument(&doc); err != nil {
		return nil, &errors.ErrCredentialsValidation{Path: s.path, Err: err}
	}

	return &doc, nil
}

// Save writes the full document. The previous file content is copied to
// the backup path first; a failed backup is logged and does not block
// the save. The write itself goes through a temp file in the same
// directory followed by a rename, so readers never observe a torn file.
func (s *Store) Save(doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return &errors.ErrCredentialsValidation{Path: s.path, Err: err}
	}

	s.backup()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &errors.ErrPersistence{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errors.ErrDirectoryCreate{Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &errors.ErrPersistence{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &errors.ErrPersistence{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &errors.ErrPersistence{Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return &errors.ErrPersistence{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &errors.ErrPersistence{Path: s.path, Err: err}
	}

	return nil
}

// Backup copies the current file to the backup path, overwriting the
// previous backup generation.
func (s *Store) Backup() error {
	src, err := os.Open(s.path)
	if err != nil {
		return &errors.ErrFileRead{Path: s.path, Err: err}
	}
	defer src.Close()

	dst, err := os.OpenFile(s.backupPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return &errors.ErrPersistence{Path: s.backupPath, Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &errors.ErrPersistence{Path: s.backupPath, Err: err}
	}
	return nil
}

func (s *Store) backup() {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return
	}
	if err := s.Backup(); err != nil && s.logger != nil {
		s.logger.Warn("credential backup failed, continuing with save",
			"path", s.backupPath, "error", err.Error())
	}
}
