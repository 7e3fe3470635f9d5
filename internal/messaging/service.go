// Package messaging delivers CareCircle notifications to caregivers by SMS and voice call.
package messaging

import (
	"context"
	"errors"
)

// ErrServiceStopped is returned by services that have been shut down.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable notification delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a phone number and returns it in E.164 form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message.
	SendMessage(ctx context.Context, to string, body string) error

	// PlaceCall rings the recipient and reads script aloud.
	PlaceCall(ctx context.Context, to string, script string) error
}
