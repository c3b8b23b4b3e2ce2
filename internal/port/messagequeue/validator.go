package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
)

// Validate checks whether data is a well-formed board event envelope whose type
// matches the subject. Subjects outside the board prefix pass unchecked.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	if !strings.HasPrefix(subject, SubjectPrefix+".") {
		return nil
	}

	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if ev.ID == "" || ev.TaskName == "" {
		return fmt.Errorf("schema validation failed for %s: id and task_name are required", subject)
	}
	if SubjectFor(ev.Type) != subject {
		return fmt.Errorf("event type %q does not belong on subject %s", ev.Type, subject)
	}
	return nil
}
