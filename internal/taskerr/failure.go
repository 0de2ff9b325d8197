package taskerr

import (
	"fmt"
	"time"
)

// Failure couples an error with the context attributing it to a source
// location. Task functions return it so the recorded identity tuple is
// what the failing code actually observed, not a guess from the stack.
type Failure struct {
	Context ErrorContext
	Err     error
}

// NewFailure wraps an error with explicit attribution
func NewFailure(err error, errType, filePath, functionName string, lineNumber int) *Failure {
	return &Failure{
		Context: ErrorContext{
			Type:         errType,
			FilePath:     filePath,
			FunctionName: functionName,
			LineNumber:   lineNumber,
			Message:      err.Error(),
			OccurredAt:   time.Now(),
		},
		Err: err,
	}
}

// Error implements the error interface
func (f *Failure) Error() string {
	return fmt.Sprintf("%s in %s:%d: %v", f.Context.Type, f.Context.FilePath, f.Context.LineNumber, f.Err)
}

// Unwrap returns the underlying error
func (f *Failure) Unwrap() error {
	return f.Err
}
