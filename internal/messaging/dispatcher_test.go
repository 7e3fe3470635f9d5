package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/store"
)

type queued struct {
	recipient, kind, payload, dedupeKey string
}

type fakeOutbox struct {
	msgs []queued
}

func (f *fakeOutbox) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	f.msgs = append(f.msgs, queued{recipient, kind, payloadJSON, dedupeKey})
	return "outbox_test", nil
}

func (f *fakeOutbox) bodies(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range f.msgs {
		var p payload
		if err := json.Unmarshal([]byte(m.payload), &p); err != nil {
			t.Fatalf("bad payload %q: %v", m.payload, err)
		}
		out = append(out, p.Body+p.Script)
	}
	return out
}

func member(id string, priority int) models.FamilyMember {
	return models.FamilyMember{ID: id, FamilyID: "fam", Name: id, Phone: "+1555000" + strings.Repeat("0", 4-len(id)) + id, EmergencyPriority: priority}
}

func TestNotifyAssignment(t *testing.T) {
	ob := &fakeOutbox{}
	d := NewDispatcher(ob, LogService{})
	task := models.CareTask{ID: "task_1", Title: "Check on Dad"}

	if _, err := d.NotifyAssignment(member("1", 0), task, "Hi, can you check on Dad?"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.NotifyAssignment(member("2", 0), task, ""); err != nil {
		t.Fatal(err)
	}
	bodies := ob.bodies(t)
	if bodies[0] != "CareCircle Alert: Hi, can you check on Dad?" {
		t.Errorf("unexpected body %q", bodies[0])
	}
	if !strings.HasPrefix(bodies[1], AlertPrefix) || !strings.Contains(bodies[1], "Check on Dad") {
		t.Errorf("unexpected default body %q", bodies[1])
	}
	if ob.msgs[0].dedupeKey != "assign:task_1:1" || ob.msgs[0].kind != KindSMS || ob.msgs[0].recipient != "+15550000001" {
		t.Errorf("unexpected message %+v", ob.msgs[0])
	}
}

func TestNotifyAssignmentInvalidPhone(t *testing.T) {
	d := NewDispatcher(&fakeOutbox{}, LogService{})
	m := member("1", 0)
	m.Phone = "n/a"
	if _, err := d.NotifyAssignment(m, models.CareTask{ID: "t"}, "x"); err == nil {
		t.Error("expected error for invalid phone")
	}
}

func TestNotifyActionPlanSkipsBadPhones(t *testing.T) {
	ob := &fakeOutbox{}
	d := NewDispatcher(ob, LogService{})
	bad := member("3", 0)
	bad.Phone = ""
	plan := models.ActionPlan{Recommendation: models.RecommendUrgentCare, EstimatedTimeframe: "within 2 hours"}

	n := d.NotifyActionPlan([]models.FamilyMember{member("1", 0), bad, member("2", 0)}, "alert_1", models.ScenarioChestPain, plan)
	if n != 2 || len(ob.msgs) != 2 {
		t.Fatalf("expected 2 queued, got %d", n)
	}
	want := "CareCircle Alert: Triage for Chest Pain finished. Go to urgent care (within 2 hours)."
	if got := ob.bodies(t)[0]; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEmergencyContactsOrderingAndCap(t *testing.T) {
	members := []models.FamilyMember{
		member("a", 3), member("b", 0), member("c", 1), member("d", 2),
		member("e", 5), member("f", 4), member("g", 6), member("h", 1),
	}
	got := EmergencyContacts(members)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if strings.Join(ids, ",") != "c,h,d,a,f" {
		t.Errorf("unexpected contact order %v", ids)
	}
}

func TestEscalateEmergency(t *testing.T) {
	ob := &fakeOutbox{}
	d := NewDispatcher(ob, LogService{})
	d.now = func() time.Time { return time.Date(2026, 5, 1, 14, 30, 0, 0, time.UTC) }
	plan := models.ActionPlan{Recommendation: models.RecommendCall911, CallScript: "Call 911 immediately."}

	reached := d.EscalateEmergency([]models.FamilyMember{member("1", 2), member("2", 0), member("3", 1)}, "alert_9", models.ScenarioFall, plan)
	if len(reached) != 2 || reached[0].ID != "3" {
		t.Fatalf("unexpected contacts reached %+v", reached)
	}
	if len(ob.msgs) != 4 {
		t.Fatalf("expected a call and an SMS per contact, got %d messages", len(ob.msgs))
	}
	if ob.msgs[0].kind != KindVoiceCall || ob.msgs[0].dedupeKey != "emergency:alert_9:3:call" {
		t.Errorf("unexpected first message %+v", ob.msgs[0])
	}
	bodies := ob.bodies(t)
	if bodies[0] != "Call 911 immediately." {
		t.Errorf("call script not carried: %q", bodies[0])
	}
	if !strings.Contains(bodies[1], "EMERGENCY ALERT") || !strings.Contains(bodies[1], "Situation: Fall") || !strings.Contains(bodies[1], "2026-05-01 14:30 UTC") {
		t.Errorf("unexpected emergency SMS %q", bodies[1])
	}
}

func TestEscalateEmergencyWithoutContacts(t *testing.T) {
	ob := &fakeOutbox{}
	if got := NewDispatcher(ob, LogService{}).EscalateEmergency([]models.FamilyMember{member("1", 0)}, "a", models.ScenarioFall, models.ActionPlan{}); got != nil {
		t.Errorf("expected no contacts, got %v", got)
	}
	if len(ob.msgs) != 0 {
		t.Error("nothing should be queued")
	}
}

func TestDeliverRoutesByKind(t *testing.T) {
	mock := NewMockClient()
	d := NewDispatcher(&fakeOutbox{}, NewTwilioService(mock))
	ctx := context.Background()

	if err := d.Deliver(ctx, store.OutboxMessage{ID: "1", Recipient: "+15551234567", Kind: KindSMS, PayloadJSON: `{"body":"hi"}`}); err != nil {
		t.Fatal(err)
	}
	if err := d.Deliver(ctx, store.OutboxMessage{ID: "2", Recipient: "+15551234567", Kind: KindVoiceCall, PayloadJSON: `{"script":"help"}`}); err != nil {
		t.Fatal(err)
	}
	if err := d.Deliver(ctx, store.OutboxMessage{ID: "3", Kind: "fax", PayloadJSON: `{}`}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := d.Deliver(ctx, store.OutboxMessage{ID: "4", Kind: KindSMS, PayloadJSON: `not json`}); err == nil {
		t.Error("expected error for bad payload")
	}
	sms, calls := mock.Sent()
	if len(sms) != 1 || len(calls) != 1 || !strings.Contains(calls[0].Body, "help") {
		t.Errorf("unexpected deliveries sms=%v calls=%v", sms, calls)
	}
}

func TestDispatcherThroughSQLiteOutbox(t *testing.T) {
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "outbox.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	mock := NewMockClient()
	d := NewDispatcher(st, NewTwilioService(mock))
	task := models.CareTask{ID: "task_7", Title: "Pick up prescription"}
	id1, err := d.NotifyAssignment(member("1", 0), task, "please grab the meds")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := d.NotifyAssignment(member("1", 0), task, "please grab the meds")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("duplicate assignment notification should be deduplicated: %s vs %s", id1, id2)
	}

	sender := store.NewOutboxSender(st, d.Deliver, time.Second)
	if n := sender.RunOnce(context.Background(), time.Now().Add(time.Second)); n != 1 {
		t.Fatalf("expected 1 message claimed, got %d", n)
	}
	sms, _ := mock.Sent()
	if len(sms) != 1 || sms[0].Body != "CareCircle Alert: please grab the meds" {
		t.Errorf("unexpected delivered SMS %+v", sms)
	}
	msg, err := st.GetOutboxMessage(id1)
	if err != nil || msg == nil || msg.Status != store.OutboxStatusSent {
		t.Errorf("expected message sent, got %+v err=%v", msg, err)
	}
}

func TestDispatcherWithoutOutboxDeliversImmediately(t *testing.T) {
	mock := NewMockClient()
	d := NewDispatcher(nil, NewTwilioService(mock))
	id, err := d.NotifyAssignment(member("1", 0), models.CareTask{ID: "task_1", Title: "Call the pharmacy"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Error("expected a message id")
	}
	if sms, _ := mock.Sent(); len(sms) != 1 {
		t.Errorf("expected immediate delivery, got %d messages", len(sms))
	}

	mock.Err = errors.New("carrier down")
	if _, err := d.NotifyAssignment(member("2", 0), models.CareTask{ID: "task_2"}, "x"); err == nil {
		t.Error("delivery errors should surface without an outbox")
	}
}
