package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTwilioServiceSendMessage(t *testing.T) {
	mock := NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "(555) 123-4567", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sms, calls := mock.Sent()
	if len(sms) != 1 || len(calls) != 0 {
		t.Fatalf("expected one SMS and no calls, got %d/%d", len(sms), len(calls))
	}
	if sms[0].To != "+15551234567" || sms[0].Body != "hello" {
		t.Errorf("unexpected SMS %+v", sms[0])
	}
}

func TestTwilioServiceRejectsInvalidRecipient(t *testing.T) {
	mock := NewMockClient()
	svc := NewTwilioService(mock)
	if err := svc.SendMessage(context.Background(), "abc", "hello"); err == nil {
		t.Fatal("expected validation error")
	}
	if sms, _ := mock.Sent(); len(sms) != 0 {
		t.Error("nothing should be sent to an invalid recipient")
	}
}

func TestTwilioServicePlaceCallRendersTwiML(t *testing.T) {
	mock := NewMockClient()
	svc := NewTwilioService(mock)
	if err := svc.PlaceCall(context.Background(), "+15551234567", "Mom fell & can't get up"); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	_, calls := mock.Sent()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	twiml := calls[0].Body
	for _, want := range []string{"<Response>", `<Say voice="alice" loop="2">`, "Mom fell &amp; can&#39;t get up", "</Response>"} {
		if !strings.Contains(twiml, want) {
			t.Errorf("TwiML missing %q: %s", want, twiml)
		}
	}
}

func TestTwilioServicePropagatesSenderError(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("carrier down")
	svc := NewTwilioService(mock)
	if err := svc.SendMessage(context.Background(), "+15551234567", "x"); err == nil {
		t.Error("expected sender error")
	}
}

func TestTwilioServiceStop(t *testing.T) {
	svc := NewTwilioService(NewMockClient())
	svc.Stop()
	if err := svc.SendMessage(context.Background(), "+15551234567", "x"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if err := svc.PlaceCall(context.Background(), "+15551234567", "x"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestNewTwilioClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("nope")); err == nil {
		t.Error("expected error for invalid from number")
	}
	c, err := NewTwilioClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.from != "+15550001111" {
		t.Errorf("unexpected from number %q", c.from)
	}
}

func TestTwilioClientHonorsCancelledContext(t *testing.T) {
	c, err := NewTwilioClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.SendSMS(ctx, "+15551234567", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := c.PlaceCall(ctx, "+15551234567", "<Response/>"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLogService(t *testing.T) {
	var svc Service = LogService{}
	if _, err := svc.ValidateAndCanonicalizeRecipient("x"); err == nil {
		t.Error("LogService should still validate recipients")
	}
	if err := svc.SendMessage(context.Background(), "+15551234567", "hi"); err != nil {
		t.Error(err)
	}
	if err := svc.PlaceCall(context.Background(), "+15551234567", "hi"); err != nil {
		t.Error(err)
	}
}
