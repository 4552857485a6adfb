package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"gestionjm/internal/core"
)

type RecordKind string

type SyncOp string

const (
	KindExpense  RecordKind = "expense"
	KindTransfer RecordKind = "transfer"

	OpUpsert SyncOp = "upsert"
	OpDelete SyncOp = "delete"
)

// RecordSyncMessage tells the worker a record changed. It carries only the
// id; the worker reads the current record from the database. Date is kept so
// a delete can find the year sheet the row lives in.
type RecordSyncMessage struct {
	Kind      RecordKind `json:"kind"`
	Op        SyncOp     `json:"op"`
	ID        string     `json:"id"`
	Date      core.Date  `json:"date"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewRecordSyncMessage(kind RecordKind, op SyncOp, id string, date core.Date) *RecordSyncMessage {
	return &RecordSyncMessage{
		Kind:      kind,
		Op:        op,
		ID:        id,
		Date:      date,
		Timestamp: time.Now(),
	}
}

func (m *RecordSyncMessage) Validate() error {
	switch m.Kind {
	case KindExpense, KindTransfer:
	default:
		return fmt.Errorf("unknown record kind %q", m.Kind)
	}
	switch m.Op {
	case OpUpsert, OpDelete:
	default:
		return fmt.Errorf("unknown sync op %q", m.Op)
	}
	if m.ID == "" {
		return fmt.Errorf("missing record id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordSyncMessageFromJSON decodes and validates a message body.
func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
