package messaging

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender is the carrier-facing half of the Twilio integration. It returns the provider's SID.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
	PlaceCall(ctx context.Context, to, twiml string) (string, error)
}

// TwilioOpts holds configuration for the Twilio client.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio client.
type TwilioOption func(*TwilioOpts)

func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the Twilio number messages and calls originate from, in E.164 form.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioClient sends SMS and places voice calls through the Twilio REST API.
type TwilioClient struct {
	client *twilio.RestClient
	from   string
}

var _ Sender = (*TwilioClient)(nil)

// NewTwilioClient builds a client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewTwilioClient(opts ...TwilioOption) (*TwilioClient, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	from, err := CanonicalizePhone(cfg.FromNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid from number: %w", err)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioClient{client: client, from: from}, nil
}

// SendSMS sends a text message. The Twilio SDK has no context support, so ctx is only checked
// before the request goes out.
func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendSMS failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}
	sid := derefString(resp.Sid)
	slog.Debug("Twilio SMS sent", "to", to, "sid", sid)
	return sid, nil
}

// PlaceCall starts an outbound call that plays the given TwiML document.
func (c *TwilioClient) PlaceCall(ctx context.Context, to, twiml string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetTwiml(twiml)

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("Twilio PlaceCall failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to place call to %s: %w", to, err)
	}
	sid := derefString(resp.Sid)
	slog.Debug("Twilio call placed", "to", to, "sid", sid)
	return sid, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Loop  int    `xml:"loop,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     twimlSay `xml:"Say"`
}

// SpeechTwiML renders a TwiML document that reads script aloud twice.
func SpeechTwiML(script string) (string, error) {
	out, err := xml.Marshal(twimlResponse{Say: twimlSay{Voice: "alice", Loop: 2, Text: script}})
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML: %w", err)
	}
	return xml.Header + string(out), nil
}

// MockClient records what would have been sent. Err, when set, is returned by every call.
type MockClient struct {
	mu    sync.Mutex
	SMS   []SentMessage
	Calls []SentMessage
	Err   error
}

// SentMessage is one recorded delivery. Body holds the SMS text or the call's TwiML.
type SentMessage struct {
	To   string
	Body string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.SMS = append(m.SMS, SentMessage{To: to, Body: body})
	return fmt.Sprintf("SM%04d", len(m.SMS)), nil
}

func (m *MockClient) PlaceCall(ctx context.Context, to, twiml string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Calls = append(m.Calls, SentMessage{To: to, Body: twiml})
	return fmt.Sprintf("CA%04d", len(m.Calls)), nil
}

// Sent returns copies of the recorded messages and calls.
func (m *MockClient) Sent() (sms, calls []SentMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SMS...), append([]SentMessage(nil), m.Calls...)
}
