// Package archiveerr classifies failures from the archive pipeline so
// callers can decide whether to retry, back off, or drop a task.
package archiveerr

import "fmt"

// Kind classifies the cause of an archive failure.
type Kind int

const (
	Other Kind = iota
	Network
	Database
	Data
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Database:
		return "database"
	case Data:
		return "data"
	case Timeout:
		return "timeout"
	default:
		return "other"
	}
}

// ArchiveError wraps an underlying error with a Kind so the fetch and
// flush paths can branch on failure category without string matching.
type ArchiveError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind and operation label. Returns nil if
// err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ArchiveError{Kind: kind, Op: op, Err: err}
}

func Networkf(op string, err error) error  { return New(Network, op, err) }
func Databasef(op string, err error) error { return New(Database, op, err) }
func Dataf(op string, err error) error     { return New(Data, op, err) }
func Timeoutf(op string, err error) error  { return New(Timeout, op, err) }

// KindOf returns the Kind of err if it is (or wraps) an *ArchiveError,
// otherwise Other.
func KindOf(err error) Kind {
	var ae *ArchiveError
	if ok := asArchiveError(err, &ae); ok {
		return ae.Kind
	}
	return Other
}

// Retryable reports whether a failure of this kind is worth retrying.
// Data errors (malformed payloads, invariant violations) are not:
// retrying won't change the response.
func (k Kind) Retryable() bool {
	switch k {
	case Network, Database, Timeout:
		return true
	default:
		return false
	}
}

func asArchiveError(err error, target **ArchiveError) bool {
	for err != nil {
		if ae, ok := err.(*ArchiveError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
