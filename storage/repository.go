// Package storage provides the record storage layer for certificate authority
// state. Records are namespaced by CA identifier, record type and record ID so
// that several authorities can share one backend.
package storage

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCANotFound is returned when no record exists for the CA namespace.
	ErrCANotFound = errors.New("certificate authority not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// BatchTx provides reads and writes within an atomic transaction.
// The caID is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Get(recordType string, recordID string) (*Record, error)
	Put(recordType string, recordID string, record *Record) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for CA record storage.
//
// List returns record IDs in ascending lexical order; callers rely on this as
// the store enumeration order.
type Repository interface {
	Put(caID string, recordType string, recordID string, record *Record) error
	Get(caID string, recordType string, recordID string) (*Record, error)
	List(caID string, recordType string) ([]string, error)
	Delete(caID string, recordType string, recordID string) error
	PutCAS(caID string, recordType string, recordID string, expectedVersion uint64, record *Record) error
	Batch(caID string, fn func(tx BatchTx) error) error
}
