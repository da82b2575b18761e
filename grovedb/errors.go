package grovedb

import "errors"

// Recoverable, caller-induced failures (spec.md 4.6 "Failure semantics" /
// spec.md 7): a missing path or key is something a caller can retry against
// after fixing its input.
var (
	ErrPathNotFound           = errors.New("grovedb: path not found")
	ErrPathParentLayerNotFound = errors.New("grovedb: parent layer of path not found")
	ErrKeyNotFound            = errors.New("grovedb: key not found")
)

// Fatal integrity violations (spec.md 4.6): these indicate persisted data
// has been corrupted or tampered with, never a caller mistake.
var (
	ErrCorruptedPath = errors.New("grovedb: corrupted path (parent element is not a subtree)")
	ErrCorruptedData = errors.New("grovedb: corrupted data")
)

// Input validation failures (spec.md 4.6).
var ErrInvalidInput = errors.New("grovedb: invalid input")

// Reference resolution failures (spec.md 4.6 "Reference following").
var (
	ErrMissingReference = errors.New("grovedb: reference target not found")
	ErrCyclicReference  = errors.New("grovedb: cyclic reference")
	ErrReferenceLimit   = errors.New("grovedb: reference hop limit exceeded")
)

// Batch engine failures (spec.md 4.6 "Consistency check").
var (
	ErrInternalOpNotAllowed = errors.New("grovedb: internal-only op submitted by caller")
	ErrDuplicatePathKey     = errors.New("grovedb: duplicate (path, key) in one batch")
)

// Transaction failures.
var (
	ErrTransactionNotFound  = errors.New("grovedb: transaction not found")
	ErrAlreadyInTransaction = errors.New("grovedb: operation requires no active transaction on this handle")
)

// Restoration failures (spec.md 4.8, mirroring merk's).
var ErrRestorationNotComplete = errors.New("grovedb: restoration not complete")
