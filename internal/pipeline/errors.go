package pipeline

import (
	"errors"
	"fmt"

	"github.com/blagoySimandov/autoflow/internal/dataset"
)

type ErrorClass string

const (
	ClassDatasetNotFound       ErrorClass = "dataset-not-found"
	ClassStorePermissionDenied ErrorClass = "store-permission-denied"
	ClassGeneric               ErrorClass = "generic"
)

// FatalRunError aborts a run before any record is processed. Nothing is
// persisted for such a run.
type FatalRunError struct {
	Class ErrorClass
	Err   error
}

func (e *FatalRunError) Error() string {
	return fmt.Sprintf("run aborted (%s): %v", e.Class, e.Err)
}

func (e *FatalRunError) Unwrap() error {
	return e.Err
}

func classifyDatasetError(err error) *FatalRunError {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		return &FatalRunError{Class: ClassDatasetNotFound, Err: err}
	case errors.Is(err, dataset.ErrPermissionDenied):
		return &FatalRunError{Class: ClassStorePermissionDenied, Err: err}
	default:
		return &FatalRunError{Class: ClassGeneric, Err: err}
	}
}
