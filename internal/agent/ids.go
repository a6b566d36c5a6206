package agent

import (
	"crypto/rand"
	"fmt"
)

// NewID() mints a 6-character lowercase hex agent id.
func NewID() (string, error) {
	buf:= make([]byte, 3)
	if _, err:= rand.Read(buf); err != nil {
		return "", fmt.Errorf("agent: generate id: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}
