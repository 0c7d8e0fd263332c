package state

type (
	// Event triggers the state change.
	// Use imperative verbs for implementations.
	Event interface {
		event()
	}

	// Toggle event switches between running and suspended states. New
	// running state is sent to the feedback channel.
	Toggle struct {
		Feedback chan bool
	}

	// Close event is sent to stop the loop. Error of stopping the output
	// is sent to the feedback channel.
	Close struct {
		Feedback chan error
	}
)

func (Toggle) event() {}

func (Close) event() {}
