package protocol

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// NewRequestID draws a random UUID from r and returns its 36-character form.
// Callers inject r (crypto/rand.Reader in production) so ids stay
// reproducible under test.
func NewRequestID(r io.Reader) (string, error) {
	if r == nil {
		return "", ErrRandomnessSource
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", fmt.Errorf("protocol: generate request id: %w", err)
	}
	return id.String(), nil
}
