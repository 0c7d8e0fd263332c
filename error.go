package audiograph

import (
	"errors"
	"fmt"

	"pipelined.dev/audiograph/kind"
)

var (
	// ErrUnknownKind is returned when kind is not registered.
	ErrUnknownKind = kind.ErrUnknownKind
	// ErrDuplicateID is returned when node id is already taken.
	ErrDuplicateID = errors.New("duplicate node id")
	// ErrDeviceAcquisition is matched by errors of failed asynchronous
	// creation.
	ErrDeviceAcquisition = errors.New("device acquisition failed")
	// ErrClosed is returned when engine is already closed.
	ErrClosed = errors.New("engine is closed")
	// ErrNotRecorder is returned when recording is requested from a node
	// that doesn't record.
	ErrNotRecorder = errors.New("node does not record")
)

// AcquisitionError is returned when device for a node cannot be acquired.
type AcquisitionError struct {
	ID  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.ID, e.Err)
}

// Unwrap returns the device error.
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is matches ErrDeviceAcquisition.
func (e *AcquisitionError) Is(err error) bool {
	return err == ErrDeviceAcquisition
}
