package helpers

import "fmt"

// SystemError carries a driver error (mongo, redis, influx) together with the
// place it surfaced, so log lines point at the failing store call instead of
// a bare "context deadline exceeded"
type SystemError struct {
	Context string // usually the function name (see FuncName)
	Err     error
}

func (se *SystemError) Error() string {
	return fmt.Sprintf("%s: %v", se.Context, se.Err)
}

// WrapError attaches context information to a store error before it is
// passed up to the controllers
func WrapError(err error, info string) *SystemError {
	return &SystemError{
		Context: info,
		Err:     err,
	}
}
