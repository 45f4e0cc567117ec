package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

// Serialize writes the session as the versioned persistence record. Keys are
// emitted in struct order, so serialized sessions diff cleanly.
func Serialize(s *model.Session) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Deserialize restores a session. Unknown or future schema versions are
// rejected outright; partial recovery of a half-understood record would
// corrupt the resumption contract.
func Deserialize(b []byte) (*model.Session, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, &TransitionError{Op: "deserialize", Reason: fmt.Sprintf("decode session record: %v", err)}
	}
	if probe.SchemaVersion != model.SchemaVersion {
		return nil, &TransitionError{Op: "deserialize", Reason: fmt.Sprintf(
			"unsupported schema version %d (want %d)", probe.SchemaVersion, model.SchemaVersion)}
	}

	var s model.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, &TransitionError{Op: "deserialize", Reason: fmt.Sprintf("decode session record: %v", err)}
	}
	if err := checkInvariants(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// checkInvariants rejects records that decode but describe an unreachable
// session: committed steps must be a prefix of the canonical order and the
// pointer must agree with it.
func checkInvariants(s *model.Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return &TransitionError{Op: "deserialize", Reason: "session record has no id"}
	}
	order := model.Order()
	if len(s.Steps) > len(order) {
		return &TransitionError{Op: "deserialize", Reason: "too many committed steps"}
	}
	for i, st := range s.Steps {
		if st.Type != order[i] {
			return &TransitionError{Op: "deserialize", Reason: fmt.Sprintf(
				"committed step %d is %s, want %s", i, st.Type, order[i])}
		}
	}
	switch s.Current {
	case model.StepHarmonizing:
		if !s.AllStepsCommitted() {
			return &TransitionError{Op: "deserialize", Reason: "harmonizing pointer with uncommitted steps"}
		}
	case model.StepDone:
		if !s.AllStepsCommitted() {
			return &TransitionError{Op: "deserialize", Reason: "done pointer with uncommitted steps"}
		}
	default:
		if s.Current.Index() != len(s.Steps) {
			return &TransitionError{Op: "deserialize", Reason: fmt.Sprintf(
				"pointer %s does not follow %d committed steps", s.Current, len(s.Steps))}
		}
	}
	return nil
}

// SaveSession persists the session to path.
func SaveSession(path string, s *model.Session) error {
	b, err := Serialize(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadSession restores a session from path.
func LoadSession(path string) (*model.Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(b)
}
