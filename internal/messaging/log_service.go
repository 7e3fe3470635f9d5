package messaging

import (
	"context"
	"log/slog"
)

// LogService writes notifications to the log instead of delivering them. It is used when Twilio
// is not configured so the rest of the pipeline still runs end to end.
type LogService struct{}

var _ Service = LogService{}

func (LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (LogService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Info("LogService.SendMessage: delivery not configured, logging only", "to", to, "body", body)
	return nil
}

func (LogService) PlaceCall(ctx context.Context, to string, script string) error {
	slog.Info("LogService.PlaceCall: delivery not configured, logging only", "to", to, "script", script)
	return nil
}
