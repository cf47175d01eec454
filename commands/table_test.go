package commands

import (
	"context"
	"errors"
	"testing"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
)

type stubSubmitter struct {
	requests []core.TaskRequest
	taskID   string
	err      error
}

func (s *stubSubmitter) Submit(_ context.Context, req core.TaskRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	if s.taskID == "" {
		return "task-1", nil
	}
	return s.taskID, nil
}

func noopRegistration(name string) Registration {
	return Registration{
		Name:    name,
		Class:   core.TaskClassReport,
		Handler: func(context.Context, core.Command) error { return nil },
	}
}

func TestTableRegisterAndLookup(t *testing.T) {
	table := NewTable()
	if err := table.Register(noopRegistration("Hello")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, ok := table.Lookup("hello"); !ok {
		t.Fatal("expected lower-cased lookup to match")
	}
	if _, ok := table.Lookup("  HELLO  "); !ok {
		t.Fatal("expected trimmed case-folded lookup to match")
	}
	if _, ok := table.Lookup("hello there"); ok {
		t.Fatal("prefix matching must not happen")
	}
}

func TestTableRejectsDuplicates(t *testing.T) {
	table := NewTable()
	if err := table.Register(noopRegistration("hello")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := table.Register(noopRegistration("HELLO")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestDefaultTableCommandSet(t *testing.T) {
	table, err := NewDefaultTable(&stubMessenger{}, &stubMonitor{}, "1.0.0", "")
	if err != nil {
		t.Fatalf("build default table: %v", err)
	}
	names := table.Names()
	want := []string{"hello", "show issues", "show status"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestDispatchSubmitsRegisteredCommand(t *testing.T) {
	table := NewTable()
	executed := false
	reg := Registration{
		Name:  "show issues",
		Class: core.TaskClassReport,
		Handler: func(context.Context, core.Command) error {
			executed = true
			return nil
		},
	}
	if err := table.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	submitter := &stubSubmitter{taskID: "task-42"}
	dispatcher := NewDispatcher(table, submitter, glog.Nop())

	cmd := core.Command{
		Normalized:  "show issues",
		IssuerEmail: "jdoe@example.net",
		Room:        core.Room{ID: "room-1", Type: core.RoomTypeGroup},
	}
	taskID, err := dispatcher.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if taskID != "task-42" {
		t.Fatalf("expected tracking id task-42, got %q", taskID)
	}
	if len(submitter.requests) != 1 {
		t.Fatalf("expected one submission, got %d", len(submitter.requests))
	}
	req := submitter.requests[0]
	if req.Name != "show issues" || req.Class != core.TaskClassReport {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Room.ID != "room-1" || req.IssuerEmail != "jdoe@example.net" {
		t.Fatalf("room and issuer must travel with the task, got %+v", req)
	}
	if executed {
		t.Fatal("handler must not run during dispatch")
	}
	if err := req.Run(context.Background()); err != nil {
		t.Fatalf("run task: %v", err)
	}
	if !executed {
		t.Fatal("expected submitted task to invoke the handler")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	table := NewTable()
	if err := table.Register(noopRegistration("hello")); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitter := &stubSubmitter{}
	dispatcher := NewDispatcher(table, submitter, glog.Nop())

	_, err := dispatcher.Dispatch(context.Background(), core.Command{
		Normalized: "sudo make me a sandwich",
		Room:       core.Room{ID: "room-1"},
	})
	if !IsUnknownCommand(err) {
		t.Fatalf("expected unknown-command classification, got %v", err)
	}
	if len(submitter.requests) != 0 {
		t.Fatal("unknown commands must never be submitted")
	}
}

func TestDispatchSubmissionFailure(t *testing.T) {
	table := NewTable()
	if err := table.Register(noopRegistration("hello")); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitter := &stubSubmitter{err: errors.New("queue full")}
	dispatcher := NewDispatcher(table, submitter, glog.Nop())

	_, err := dispatcher.Dispatch(context.Background(), core.Command{
		Normalized: "hello",
		Room:       core.Room{ID: "room-1"},
	})
	if err == nil {
		t.Fatal("expected submission failure to surface")
	}
	if IsUnknownCommand(err) {
		t.Fatal("submission failure must not classify as unknown command")
	}
}
