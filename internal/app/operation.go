package app

import "pv-go/internal/database"

// Operation tracks a CLI command that may write a journal row. Commands are
// created in memory with ID=0. Only vault-mutating commands persist them
// (giving them an auto-increment ID from the journal).
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // database.StatusSuccess or database.StatusError
}

// NewOperation creates a new in-memory operation record.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     database.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}
