package messagequeue

import (
	"strings"
	"testing"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
)

func TestSubjectFor(t *testing.T) {
	if got := SubjectFor(event.TypeBidSelected); got != "board.bid.selected" {
		t.Fatalf("SubjectFor = %q, want board.bid.selected", got)
	}
}

func TestValidateValidEvent(t *testing.T) {
	data := []byte(`{"id":"e1","type":"task.created","task_name":"logo","caller":"c","payload":{}}`)
	if err := Validate(SubjectFor(event.TypeTaskCreated), data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	// Subjects outside the board prefix pass.
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	err := Validate(SubjectFor(event.TypeTaskCreated), []byte(`{not valid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	err := Validate(SubjectFor(event.TypeTaskCreated), []byte(`"just a string"`))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	data := []byte(`{"type":"task.created"}`)
	if err := Validate(SubjectFor(event.TypeTaskCreated), data); err == nil {
		t.Fatal("expected error for missing id and task_name")
	}
}

func TestValidateSubjectMismatch(t *testing.T) {
	data := []byte(`{"id":"e1","type":"task.removed","task_name":"logo"}`)
	err := Validate(SubjectFor(event.TypeTaskCreated), data)
	if err == nil {
		t.Fatal("expected subject mismatch error")
	}
	if !strings.Contains(err.Error(), "does not belong") {
		t.Fatalf("unexpected error: %v", err)
	}
}
