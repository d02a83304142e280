// Package file provides file-based persistence implementation for workflows, executions and records.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/petflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every document is a JSON file under root; a single lock serialises writers so that
// version checks and live-execution uniqueness hold within one process.
type Persistence struct {
	store         *store
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	logRepo       *ExecutionLogRepository
	recordRepo    *RecordRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:         s,
		workflowRepo:  &WorkflowRepository{store: s},
		executionRepo: &ExecutionRepository{store: s},
		logRepo:       &ExecutionLogRepository{store: s},
		recordRepo:    &RecordRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return fp.logRepo
}

func (fp *Persistence) RecordRepository() persistence.RecordRepository {
	return fp.recordRepo
}

var errInvalidID = errors.New("identifier contains invalid characters")

type store struct {
	root string
	mu   sync.RWMutex
}

// validateID rejects identifiers that could escape the storage directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return errInvalidID
	}

	return nil
}

func (s *store) path(dir, id string) string {
	return filepath.Join(s.root, dir, id+".json")
}

// read loads a document; it returns fs.ErrNotExist when the file is missing.
func (s *store) read(dir, id string, target any) error {
	err := validateID(id)
	if err != nil {
		return fs.ErrNotExist
	}

	body, err := os.ReadFile(s.path(dir, id))
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return nil
}

func (s *store) write(dir, id string, value any) error {
	err := validateID(id)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", dir, id, err)
	}

	err = os.MkdirAll(filepath.Join(s.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	err = os.WriteFile(s.path(dir, id), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

// each decodes every document of dir and passes it to fn.
func each[T any](s *store, dir string, fn func(*T) error) error {
	files, err := fs.Glob(os.DirFS(filepath.Join(s.root, dir)), "*.json")
	if err != nil {
		return fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	for _, file := range files {
		var value T

		err := s.read(dir, strings.TrimSuffix(file, ".json"), &value)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return err
		}

		err = fn(&value)
		if err != nil {
			return err
		}
	}

	return nil
}
