package messaging

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/store"
	"github.com/BTreeMap/CareCircle/internal/util"
)

// Outbox message kinds.
const (
	KindSMS       = "sms"
	KindVoiceCall = "voice_call"
)

// AlertPrefix starts every SMS sent to a caregiver.
const AlertPrefix = "CareCircle Alert: "

// MaxEmergencyContacts caps how many members an emergency escalation reaches.
const MaxEmergencyContacts = 5

var recommendationText = map[models.Recommendation]string{
	models.RecommendCall911:    "Call 911 now",
	models.RecommendUrgentCare: "Go to urgent care",
	models.RecommendNurseLine:  "Call the nurse line",
	models.RecommendMonitor:    "Monitor at home",
}

// Outbox is where the dispatcher queues notifications for durable delivery.
type Outbox interface {
	EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error)
}

// payload is the JSON stored with each outbox message.
type payload struct {
	Body   string `json:"body,omitempty"`
	Script string `json:"script,omitempty"`
}

// Dispatcher composes caregiver notifications, queues them in the outbox, and delivers them when
// the outbox sender hands them back.
type Dispatcher struct {
	outbox Outbox
	svc    Service
	now    func() time.Time
}

// NewDispatcher creates a Dispatcher. With a nil outbox, notifications are delivered as soon as
// they are queued and delivery errors are returned to the caller.
func NewDispatcher(outbox Outbox, svc Service) *Dispatcher {
	d := &Dispatcher{outbox: outbox, svc: svc, now: time.Now}
	if outbox == nil {
		d.outbox = immediateOutbox{d}
	}
	return d
}

type immediateOutbox struct {
	d *Dispatcher
}

func (o immediateOutbox) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	msg := store.OutboxMessage{
		ID:          util.NewOutboxID(),
		Recipient:   recipient,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      store.OutboxStatusSending,
		DedupeKey:   dedupeKey,
		CreatedAt:   o.d.now(),
	}
	if err := o.d.Deliver(context.Background(), msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (d *Dispatcher) enqueue(recipient, kind string, p payload, dedupeKey string) (string, error) {
	to, err := d.svc.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}
	id, err := d.outbox.EnqueueOutboxMessage(to, kind, string(raw), dedupeKey)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s to %s: %w", kind, to, err)
	}
	slog.Debug("Dispatcher enqueued notification", "id", id, "kind", kind, "to", to, "dedupeKey", dedupeKey)
	return id, nil
}

// NotifyAssignment tells a member about a task assigned to them.
func (d *Dispatcher) NotifyAssignment(member models.FamilyMember, task models.CareTask, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = "You have been assigned a new care task: " + task.Title
	}
	return d.enqueue(member.Phone, KindSMS, payload{Body: AlertPrefix + message}, "assign:"+task.ID+":"+member.ID)
}

// NotifyCheckIn reminds the assignee that a follow-up task is still open.
func (d *Dispatcher) NotifyCheckIn(member models.FamilyMember, task models.CareTask) (string, error) {
	body := fmt.Sprintf("%sFollow-up check-in: %q is still %s. Please update it when you can.",
		AlertPrefix, task.Title, strings.ReplaceAll(string(task.Status), "_", " "))
	return d.enqueue(member.Phone, KindSMS, payload{Body: body}, "checkin:"+task.ID)
}

// NotifyActionPlan sends the triage outcome to every member of the family and returns how many
// notifications were queued. Members whose phone numbers are invalid are skipped.
func (d *Dispatcher) NotifyActionPlan(members []models.FamilyMember, alertID string, scenario models.Scenario, plan models.ActionPlan) int {
	body := fmt.Sprintf("%sTriage for %s finished. %s (%s).", AlertPrefix, scenarioLabel(scenario),
		recommendationText[plan.Recommendation], plan.EstimatedTimeframe)
	queued := 0
	for _, m := range members {
		if _, err := d.enqueue(m.Phone, KindSMS, payload{Body: body}, "plan:"+alertID+":"+m.ID); err != nil {
			slog.Warn("Dispatcher.NotifyActionPlan: skipping member", "memberID", m.ID, "error", err)
			continue
		}
		queued++
	}
	return queued
}

// EmergencyContacts returns members with a positive emergency priority, lowest number first,
// capped at MaxEmergencyContacts.
func EmergencyContacts(members []models.FamilyMember) []models.FamilyMember {
	var out []models.FamilyMember
	for _, m := range members {
		if m.EmergencyPriority > 0 {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b models.FamilyMember) int {
		return cmp.Compare(a.EmergencyPriority, b.EmergencyPriority)
	})
	if len(out) > MaxEmergencyContacts {
		out = out[:MaxEmergencyContacts]
	}
	return out
}

// EscalateEmergency calls each emergency contact with the plan's call script and follows up with
// an SMS. It returns the contacts reached.
func (d *Dispatcher) EscalateEmergency(members []models.FamilyMember, alertID string, scenario models.Scenario, plan models.ActionPlan) []models.FamilyMember {
	contacts := EmergencyContacts(members)
	if len(contacts) == 0 {
		slog.Warn("Dispatcher.EscalateEmergency: family has no emergency contacts", "alertID", alertID)
		return nil
	}
	sms := emergencySMS(scenario, d.now())
	var reached []models.FamilyMember
	for _, c := range contacts {
		key := "emergency:" + alertID + ":" + c.ID
		if _, err := d.enqueue(c.Phone, KindVoiceCall, payload{Script: plan.CallScript}, key+":call"); err != nil {
			slog.Warn("Dispatcher.EscalateEmergency: call not queued", "memberID", c.ID, "error", err)
			continue
		}
		if _, err := d.enqueue(c.Phone, KindSMS, payload{Body: sms}, key+":sms"); err != nil {
			slog.Warn("Dispatcher.EscalateEmergency: SMS not queued", "memberID", c.ID, "error", err)
		}
		reached = append(reached, c)
	}
	slog.Info("Dispatcher.EscalateEmergency: contacts notified", "alertID", alertID, "count", len(reached))
	return reached
}

func emergencySMS(scenario models.Scenario, now time.Time) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT\n\n")
	fmt.Fprintf(&b, "Your family member needs immediate assistance.\nSituation: %s\nTime: %s\n\n",
		scenarioLabel(scenario), now.UTC().Format("2006-01-02 15:04 MST"))
	b.WriteString("Please respond if available to assist.\nThis is an automated emergency notification.")
	return b.String()
}

func scenarioLabel(s models.Scenario) string {
	if !s.Valid() {
		return "Care concern"
	}
	words := strings.Split(s.String(), "_")
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Deliver sends one outbox message. It is the store.OutboxSendFunc for the notification outbox.
func (d *Dispatcher) Deliver(ctx context.Context, msg store.OutboxMessage) error {
	var p payload
	if err := json.Unmarshal([]byte(msg.PayloadJSON), &p); err != nil {
		return fmt.Errorf("invalid payload for outbox message %s: %w", msg.ID, err)
	}
	switch msg.Kind {
	case KindSMS:
		return d.svc.SendMessage(ctx, msg.Recipient, p.Body)
	case KindVoiceCall:
		return d.svc.PlaceCall(ctx, msg.Recipient, p.Script)
	default:
		return fmt.Errorf("unknown outbox message kind %q", msg.Kind)
	}
}
