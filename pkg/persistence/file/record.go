package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/google/uuid"
)

const recordsDir = "records"

// RecordRepository stores business records as JSON documents under records/<type>/.
type RecordRepository struct {
	store *store
}

// NewRecordRepository creates a record repository rooted at root.
func NewRecordRepository(root string) *RecordRepository {
	return &RecordRepository{store: &store{root: root}}
}

func recordDir(recordType models.RecordType) (string, error) {
	if !recordType.Valid() {
		return "", fmt.Errorf("%w: %s", persistence.ErrUnknownRecordType, recordType)
	}

	return path.Join(recordsDir, string(recordType)), nil
}

// GetRecord returns a record of the tenant.
func (rr *RecordRepository) GetRecord(
	_ context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID string,
) (models.Record, error) {
	rr.store.mu.RLock()
	defer rr.store.mu.RUnlock()

	return rr.get(tenantID, recordType, recordID)
}

func (rr *RecordRepository) get(tenantID string, recordType models.RecordType, recordID string) (models.Record, error) {
	dir, err := recordDir(recordType)
	if err != nil {
		return nil, err
	}

	record := models.Record{}

	err = rr.store.read(dir, recordID, &record)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %s: %w", recordType, recordID, persistence.ErrRecordNotFound)
		}

		return nil, err
	}

	if owner, _ := record["tenant_id"].(string); owner != tenantID {
		return nil, fmt.Errorf("%s %s: %w", recordType, recordID, persistence.ErrRecordNotFound)
	}

	return record, nil
}

// ListRecords returns up to limit records of a type for the tenant, oldest first.
func (rr *RecordRepository) ListRecords(
	_ context.Context,
	tenantID string,
	recordType models.RecordType,
	limit int,
) ([]models.Record, error) {
	dir, err := recordDir(recordType)
	if err != nil {
		return nil, err
	}

	rr.store.mu.RLock()
	defer rr.store.mu.RUnlock()

	records := make([]models.Record, 0)

	err = each(rr.store, dir, func(record *models.Record) error {
		if owner, _ := (*record)["tenant_id"].(string); owner == tenantID {
			records = append(records, *record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i]["created_at"].(string)
		b, _ := records[j]["created_at"].(string)

		if a == b {
			return records[i].ID() < records[j].ID()
		}

		return a < b
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// CreateRecord stores a new record and returns it as stored.
func (rr *RecordRepository) CreateRecord(
	_ context.Context,
	tenantID string,
	recordType models.RecordType,
	record models.Record,
) (models.Record, error) {
	dir, err := recordDir(recordType)
	if err != nil {
		return nil, err
	}

	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	stored := make(models.Record, len(record)+4)
	for key, value := range record {
		stored[key] = value
	}

	delete(stored, "_type")
	delete(stored, "recordType")

	id := record.ID()
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate record ID: %w", err)
		}

		id = generated.String()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	stored["id"] = id
	stored["tenant_id"] = tenantID
	stored["created_at"] = now
	stored["updated_at"] = now

	err = rr.store.write(dir, id, stored)
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// UpdateField sets one attribute, addressed by a dot path, creating intermediate objects as needed.
func (rr *RecordRepository) UpdateField(
	_ context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID, field string,
	value any,
) error {
	if field == "" {
		return errors.New("field is required")
	}

	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	record, err := rr.get(tenantID, recordType, recordID)
	if err != nil {
		return err
	}

	segments := strings.Split(field, ".")
	target := map[string]any(record)

	for _, segment := range segments[:len(segments)-1] {
		next, ok := target[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			target[segment] = next
		}

		target = next
	}

	target[segments[len(segments)-1]] = value
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	dir, _ := recordDir(recordType)

	return rr.store.write(dir, recordID, record)
}
