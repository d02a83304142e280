package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var recordTables = map[models.RecordType]string{
	models.RecordTypePet:     "pets",
	models.RecordTypeOwner:   "owners",
	models.RecordTypeBooking: "bookings",
	models.RecordTypeInvoice: "invoices",
	models.RecordTypePayment: "payments",
	models.RecordTypeTask:    "tasks",
}

var reservedRecordFields = []string{"id", "tenant_id", "created_at", "updated_at", "_type", "recordType"}

// RecordRepository reads and writes business records. Each record type lives in its own table
// with the attributes stored in a JSONB document.
type RecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sql.DB, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

// GetRecord returns a record of the tenant.
func (r *RecordRepository) GetRecord(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID string,
) (models.Record, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, err
	}

	if uuid.Validate(recordID) != nil {
		return nil, fmt.Errorf("%s %s: %w", recordType, recordID, persistence.ErrRecordNotFound)
	}

	record, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, data, created_at, updated_at FROM `+table+` WHERE tenant_id = $1 AND id = $2`,
		tenantID, recordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", recordType, recordID, persistence.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("failed to scan %s record: %w", recordType, err)
	}

	return record, nil
}

// ListRecords returns up to limit records of a type for the tenant.
func (r *RecordRepository) ListRecords(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	limit int,
) ([]models.Record, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, data, created_at, updated_at FROM `+table+` WHERE tenant_id = $1 ORDER BY created_at LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", recordType, err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]models.Record, 0)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", recordType, err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", recordType, err)
	}

	return records, nil
}

// CreateRecord inserts a record and returns it as stored.
func (r *RecordRepository) CreateRecord(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	record models.Record,
) (models.Record, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, err
	}

	id := record.ID()
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate record ID: %w", err)
		}

		id = generated.String()
	}

	data := make(map[string]any, len(record))
	for key, value := range record {
		data[key] = value
	}

	for _, key := range reservedRecordFields {
		delete(data, key)
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, tenant_id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		id, tenantID, dataJSON, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s record: %w", recordType, err)
	}

	return r.GetRecord(ctx, tenantID, recordType, id)
}

// UpdateField sets one attribute, addressed by a dot path, inside the record document.
func (r *RecordRepository) UpdateField(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID, field string,
	value any,
) error {
	table, err := tableFor(recordType)
	if err != nil {
		return err
	}

	if field == "" {
		return errors.New("field is required")
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal field value: %w", err)
	}

	if uuid.Validate(recordID) != nil {
		return fmt.Errorf("%s %s: %w", recordType, recordID, persistence.ErrRecordNotFound)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET data = jsonb_set(data, $3::text[], $4::jsonb, true), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, recordID, pq.Array(strings.Split(field, ".")), string(valueJSON))
	if err != nil {
		return fmt.Errorf("failed to update %s.%s: %w", recordType, field, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", recordType, recordID, persistence.ErrRecordNotFound)
	}

	return nil
}

func tableFor(recordType models.RecordType) (string, error) {
	table, ok := recordTables[recordType]
	if !ok {
		return "", fmt.Errorf("%w: %s", persistence.ErrUnknownRecordType, recordType)
	}

	return pq.QuoteIdentifier(table), nil
}

func scanRecord(row scanner) (models.Record, error) {
	var (
		id, tenantID         string
		dataJSON             []byte
		createdAt, updatedAt time.Time
	)

	err := row.Scan(&id, &tenantID, &dataJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	record := models.Record{}

	if len(dataJSON) > 0 {
		err = json.Unmarshal(dataJSON, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
		}
	}

	record["id"] = id
	record["tenant_id"] = tenantID
	record["created_at"] = createdAt.UTC().Format(time.RFC3339Nano)
	record["updated_at"] = updatedAt.UTC().Format(time.RFC3339Nano)

	return record, nil
}
