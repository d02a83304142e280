package models

// RecordType is the kind of business record a workflow targets.
type RecordType string

const (
	RecordTypePet     RecordType = "pet"
	RecordTypeOwner   RecordType = "owner"
	RecordTypeBooking RecordType = "booking"
	RecordTypeInvoice RecordType = "invoice"
	RecordTypePayment RecordType = "payment"
	RecordTypeTask    RecordType = "task"
)

// RecordTypes lists every record type the engine can read.
var RecordTypes = []RecordType{
	RecordTypePet,
	RecordTypeOwner,
	RecordTypeBooking,
	RecordTypeInvoice,
	RecordTypePayment,
	RecordTypeTask,
}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	for _, known := range RecordTypes {
		if t == known {
			return true
		}
	}

	return false
}

// RecordEventType is the mutation that produced a record event.
type RecordEventType string

const (
	RecordEventCreated RecordEventType = "created"
	RecordEventUpdated RecordEventType = "updated"
)

// Record is a business record as read from the record store.
type Record map[string]any

// ID returns the record identifier, if present.
func (r Record) ID() string {
	id, _ := r["id"].(string)

	return id
}

// WithType returns a shallow copy of the record tagged with its type, so conditions can match on it.
func (r Record) WithType(recordType RecordType) Record {
	enriched := make(Record, len(r)+2)
	for k, v := range r {
		enriched[k] = v
	}

	enriched["_type"] = string(recordType)
	enriched["recordType"] = string(recordType)

	return enriched
}
