package messaging

import (
	"context"
	"log/slog"
	"sync"
)

// TwilioService implements Service on top of a Sender, which is a TwilioClient in production
// and a MockClient in tests.
type TwilioService struct {
	sender  Sender
	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*TwilioService)(nil)

func NewTwilioService(sender Sender) *TwilioService {
	return &TwilioService{sender: sender}
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage validation error", "error", err, "to", to)
		return err
	}
	_, err = s.sender.SendSMS(ctx, canonicalTo, body)
	return err
}

func (s *TwilioService) PlaceCall(ctx context.Context, to string, script string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.PlaceCall validation error", "error", err, "to", to)
		return err
	}
	twiml, err := SpeechTwiML(script)
	if err != nil {
		return err
	}
	_, err = s.sender.PlaceCall(ctx, canonicalTo, twiml)
	return err
}

// Stop makes later sends fail with ErrServiceStopped.
func (s *TwilioService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
