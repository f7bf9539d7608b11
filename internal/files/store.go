package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrFileNotFound = errors.New("file not found")

// Store keeps uploaded documents and processed artifacts on disk. A file
// reference is "<8-char id>_<original name>", so the original document name
// survives inside the reference itself.
type Store struct {
	uploadDir    string
	processedDir string
}

func New(uploadDir, processedDir string) (*Store, error) {
	for _, dir := range []string{uploadDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return &Store{uploadDir: uploadDir, processedDir: processedDir}, nil
}

// Save writes an uploaded document and returns its reference.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	ref := uuid.NewString()[:8] + "_" + sanitize(originalName)

	f, err := os.Create(filepath.Join(s.uploadDir, ref))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return ref, nil
}

// SaveProcessed stores a processor output artifact derived from srcRef.
func (s *Store) SaveProcessed(srcRef, suffix string, r io.Reader) (string, error) {
	ref := uuid.NewString()[:8] + "_" + sanitize(DocumentName(srcRef)+suffix)

	f, err := os.Create(filepath.Join(s.processedDir, ref))
	if err != nil {
		return "", fmt.Errorf("failed to create processed file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write processed file: %w", err)
	}
	return ref, nil
}

func (s *Store) Exists(ref string) bool {
	_, err := s.locate(ref)
	return err == nil
}

// Path resolves a reference to its on-disk location.
func (s *Store) Path(ref string) (string, error) {
	return s.locate(ref)
}

// Open returns a reader over the stored file.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	path, err := s.locate(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *Store) Remove(ref string) error {
	path, err := s.locate(ref)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// DocumentName recovers the original document name from a reference.
func (s *Store) DocumentName(ref string) string {
	return DocumentName(ref)
}

func DocumentName(ref string) string {
	if _, name, found := strings.Cut(ref, "_"); found {
		return name
	}
	return ref
}

func (s *Store) locate(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", ErrFileNotFound
	}
	for _, dir := range []string{s.uploadDir, s.processedDir} {
		path := filepath.Join(dir, ref)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrFileNotFound
}

func sanitize(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "-")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '+':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}
