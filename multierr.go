package audiograph

import "strings"

// closeErrors wraps errors that might occur when multiple units fail to
// release on close.
type closeErrors []error

func (e closeErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, err := range e {
		s = append(s, err.Error())
	}
	return strings.Join(s, ", ")
}

// Unwrap allows to match any of wrapped errors.
func (e closeErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
