package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/commands"
	"github.com/knightjoel/zpark/core"
	"github.com/knightjoel/zpark/trust"
)

const testSecret = "hunter2"

type stubMessageSource struct {
	mu       sync.Mutex
	messages map[string]core.ChatMessage
	calls    int
	err      error
}

func (s *stubMessageSource) GetMessage(_ context.Context, messageID string) (core.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return core.ChatMessage{}, s.err
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return core.ChatMessage{}, fmt.Errorf("no message %q", messageID)
	}
	return msg, nil
}

func (s *stubMessageSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRoomSource struct {
	rooms map[string]core.Room
}

func (s *stubRoomSource) GetRoom(_ context.Context, roomID string) (core.Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return core.Room{}, fmt.Errorf("no room %q", roomID)
	}
	return room, nil
}

type stubSubmitter struct {
	mu       sync.Mutex
	requests []core.TaskRequest
	err      error
}

func (s *stubSubmitter) Submit(_ context.Context, req core.TaskRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.requests = append(s.requests, req)
	return fmt.Sprintf("task-%d", len(s.requests)), nil
}

func (s *stubSubmitter) submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type processorFixture struct {
	processor *Processor
	messages  *stubMessageSource
	submitter *stubSubmitter
	ledger    *MemoryLedger
}

func newFixture(t *testing.T) *processorFixture {
	t.Helper()

	messages := &stubMessageSource{messages: map[string]core.ChatMessage{
		"msg-1": {
			ID:          "msg-1",
			RoomID:      "room-1",
			PersonID:    "person-9",
			PersonEmail: "jdoe@example.net",
			Text:        "Zpark show issues",
			HTML:        `<p><spark-mention data-object-id="bot-1">Zpark</spark-mention> show issues</p>`,
		},
	}}
	rooms := &stubRoomSource{rooms: map[string]core.Room{
		"room-1": {ID: "room-1", Type: core.RoomTypeGroup},
	}}
	submitter := &stubSubmitter{}

	table := commands.NewTable()
	for _, name := range []string{"hello", "show issues", "show status"} {
		err := table.Register(commands.Registration{
			Name:    name,
			Class:   core.TaskClassReport,
			Handler: func(context.Context, core.Command) error { return nil },
		})
		if err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
	}

	ledger := NewMemoryLedger()
	return &processorFixture{
		processor: &Processor{
			Verifier:    SignatureVerifier{Secret: testSecret},
			Ledger:      ledger,
			Messages:    messages,
			Rooms:       rooms,
			Trust:       trust.NewList([]string{"jdoe@example.net"}),
			Extractor:   commands.NewExtractor(glog.Nop()),
			Dispatcher:  commands.NewDispatcher(table, submitter, glog.Nop()),
			BotPersonID: "bot-1",
			Logger:      glog.Nop(),
		},
		messages:  messages,
		submitter: submitter,
		ledger:    ledger,
	}
}

func envelopeBody(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	envelope := map[string]any{
		"id":       "wh-1",
		"name":     "zpark webhook",
		"resource": "messages",
		"event":    "created",
		"actorId":  "person-9",
		"data": map[string]any{
			"id":          "msg-1",
			"roomId":      "room-1",
			"personId":    "person-9",
			"personEmail": "jdoe@example.net",
			"created":     "2026-08-01T12:00:00.000Z",
		},
	}
	if mutate != nil {
		mutate(envelope)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func TestProcessDispatchesCommand(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, nil)

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if result.TaskID == "" {
		t.Fatal("expected a tracking id")
	}
	if fixture.submitter.submissions() != 1 {
		t.Fatalf("expected one submission, got %d", fixture.submitter.submissions())
	}

	record, err := fixture.ledger.Get(context.Background(), "wh-1")
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if record.Status != DeliveryStatusProcessed {
		t.Fatalf("expected processed delivery, got %q", record.Status)
	}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, nil)

	result, err := fixture.processor.Process(context.Background(), body, signBody("wrong", body))
	if err == nil {
		t.Fatal("expected signature error")
	}
	if result.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", result.StatusCode)
	}
	if fixture.messages.callCount() != 0 {
		t.Fatal("rejected deliveries must not reach the chat api")
	}
}

func TestProcessRejectsMalformedBody(t *testing.T) {
	fixture := newFixture(t)
	body := []byte(`{not json`)

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
}

func TestProcessRejectsMissingFields(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, func(envelope map[string]any) {
		data := envelope["data"].(map[string]any)
		delete(data, "roomId")
	})

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
}

func TestProcessRejectsUnsupportedEvent(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, func(envelope map[string]any) {
		envelope["resource"] = "memberships"
	})

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err == nil {
		t.Fatal("expected unsupported event error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
}

func TestProcessIgnoresOwnMessages(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, func(envelope map[string]any) {
		data := envelope["data"].(map[string]any)
		data["personId"] = "bot-1"
	})

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.StatusCode != http.StatusOK || !result.Ignored {
		t.Fatalf("expected soft ignore, got %+v", result)
	}
	if fixture.messages.callCount() != 0 {
		t.Fatal("own messages must not be fetched")
	}
}

func TestProcessMissingSenderEmail(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, func(envelope map[string]any) {
		data := envelope["data"].(map[string]any)
		delete(data, "personEmail")
	})

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err == nil {
		t.Fatal("expected structural error for missing sender email")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
}

func TestProcessUntrustedSenderIsSoft(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, func(envelope map[string]any) {
		data := envelope["data"].(map[string]any)
		data["personEmail"] = "mallory@evil.test"
	})

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err != nil {
		t.Fatalf("untrusted sender must be soft, got %v", err)
	}
	if result.StatusCode != http.StatusOK || !result.Ignored {
		t.Fatalf("expected soft ignore, got %+v", result)
	}
	if fixture.messages.callCount() != 0 {
		t.Fatal("untrusted deliveries must not reach the chat api")
	}
}

func TestProcessDeduplicatesDeliveries(t *testing.T) {
	fixture := newFixture(t)
	body := envelopeBody(t, nil)
	signature := signBody(testSecret, body)

	if _, err := fixture.processor.Process(context.Background(), body, signature); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := fixture.processor.Process(context.Background(), body, signature)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !result.Deduped || result.StatusCode != http.StatusOK {
		t.Fatalf("expected dedupe, got %+v", result)
	}
	if fixture.submitter.submissions() != 1 {
		t.Fatalf("duplicate must not dispatch again, got %d", fixture.submitter.submissions())
	}
}

func TestProcessUnknownCommandIsSoft(t *testing.T) {
	fixture := newFixture(t)
	fixture.messages.messages["msg-1"] = core.ChatMessage{
		ID:          "msg-1",
		RoomID:      "room-1",
		PersonID:    "person-9",
		PersonEmail: "jdoe@example.net",
		Text:        "Zpark sudo make me a sandwich",
		HTML:        `<p><spark-mention data-object-id="bot-1">Zpark</spark-mention> sudo make me a sandwich</p>`,
	}
	body := envelopeBody(t, nil)

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err != nil {
		t.Fatalf("unknown command must be soft, got %v", err)
	}
	if result.StatusCode != http.StatusOK || !result.Ignored {
		t.Fatalf("expected soft ignore, got %+v", result)
	}
	if fixture.submitter.submissions() != 0 {
		t.Fatal("unknown command must not submit")
	}
}

func TestProcessSubmissionFailure(t *testing.T) {
	fixture := newFixture(t)
	fixture.submitter.err = fmt.Errorf("queue full")
	body := envelopeBody(t, nil)

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err == nil {
		t.Fatal("expected infrastructure error")
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
}

func TestProcessBackendFetchFailure(t *testing.T) {
	fixture := newFixture(t)
	fixture.messages.err = fmt.Errorf("spark exploded")
	body := envelopeBody(t, nil)

	result, err := fixture.processor.Process(context.Background(), body, signBody(testSecret, body))
	if err == nil {
		t.Fatal("expected backend error")
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
}

func TestProcessRedeliveryAfterFetchFailure(t *testing.T) {
	fixture := newFixture(t)
	fixture.messages.err = fmt.Errorf("spark exploded")
	body := envelopeBody(t, nil)
	signature := signBody(testSecret, body)

	if _, err := fixture.processor.Process(context.Background(), body, signature); err == nil {
		t.Fatal("expected backend error on first delivery")
	}

	fixture.messages.err = nil
	result, err := fixture.processor.Process(context.Background(), body, signature)
	if err != nil {
		t.Fatalf("redelivery after fetch failure: %v", err)
	}
	if result.Deduped {
		t.Fatal("a failed fetch must not leave a claim behind")
	}
	if result.TaskID == "" {
		t.Fatal("expected redelivery to dispatch")
	}
	if fixture.submitter.submissions() != 1 {
		t.Fatalf("expected one submission, got %d", fixture.submitter.submissions())
	}
}
