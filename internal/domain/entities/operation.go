package entities

import "fmt"

// Operation is the kind of change a LogRecord documents.
type Operation string

const (
	OpCreate     Operation = "CREATE"
	OpUpdate     Operation = "UPDATE"
	OpDelete     Operation = "DELETE"
	OpBulkCreate Operation = "BULK_CREATE"
	OpBulkUpdate Operation = "BULK_UPDATE"
	OpBulkDelete Operation = "BULK_DELETE"
	OpRevert     Operation = "REVERT"
)

// Operations lists every operation in declaration order.
var Operations = []Operation{
	OpCreate, OpUpdate, OpDelete,
	OpBulkCreate, OpBulkUpdate, OpBulkDelete,
	OpRevert,
}

var operationLabels = map[Operation]string{
	OpCreate:     "creation",
	OpUpdate:     "update",
	OpDelete:     "deletion",
	OpBulkCreate: "bulk creation",
	OpBulkUpdate: "bulk update",
	OpBulkDelete: "bulk deletion",
	OpRevert:     "reversion",
}

// Label returns the human-readable name of the operation.
func (o Operation) Label() string {
	if l, ok := operationLabels[o]; ok {
		return l
	}
	return string(o)
}

// IsValid reports whether o is one of the known operations.
func (o Operation) IsValid() bool {
	_, ok := operationLabels[o]
	return ok
}

// IsBulk reports whether the operation covers a batch of entities.
func (o Operation) IsBulk() bool {
	return o == OpBulkCreate || o == OpBulkUpdate || o == OpBulkDelete
}

// ParseOperation parses an operation name.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !op.IsValid() {
		return "", fmt.Errorf("invalid operation %q", s)
	}
	return op, nil
}
