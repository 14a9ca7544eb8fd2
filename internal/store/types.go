package store

// Fields is one row of a delimited table: a partial mapping from header
// field name to its text value. A missing key means the field is absent
// and serializes as an empty column.
type Fields map[string]string

// KeyFunc derives the identity string of a row. Rows sharing a key are
// the same logical entity; an empty result marks the row as unaddressable
// and it is skipped.
type KeyFunc func(Fields) string

// JournalEntry is one pre-serialized line destined for a journal file,
// together with the key it belongs to.
type JournalEntry struct {
	Key  string
	Line string
}

// JournalOp classifies what an upsert did to a key.
type JournalOp string

const (
	JournalInsert JournalOp = "insert"
	JournalUpdate JournalOp = "update"
)

// CompactStats reports the effect of a journal compaction.
type CompactStats struct {
	Scanned int
	Kept    int
	Removed int
}

// Common store errors
var (
	ErrEngineClosed = NewError("EngineClosed", "The store engine has been closed")
	ErrStreamClosed = NewError("StreamClosed", "The stream writer has been closed")
)

// StoreError represents a store-specific error
type StoreError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewError creates a new store error
func NewError(code, message string) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new store error with underlying cause
func NewErrorWithCause(code, message string, cause error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
