package apperror

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNoData          = Error("no records found")
	ErrMultipleRecords = Error("mulitple records found")
	ErrGuest           = Error("user is guest")
	ErrRecordChanged   = Error("write conflict")        // optimistic transaction lost its race (caller may retry)
	ErrDenied          = Error("not allowed")           // eg. upd/del not allowed
	ErrUnavailable     = Error("store not available")   // backing store unreachable, retry with backoff
	ErrOutOfSync       = Error("vote ledger corrupted") // a counter would go negative - logged, never corrected silently
)
