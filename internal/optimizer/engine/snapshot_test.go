package engine

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	s := committedSession("intent v", "role v")
	s.Current = model.StepGoal
	s.Usage.Add(model.CallTelemetry{PromptTokens: 10, CompletionTokens: 5, Attempts: 2, CostUSD: 0.01})
	s.Steps[1].Rejections = []model.Rejection{{Candidate: "c", Feedback: "f", At: time.Now().UTC()}}

	b, err := Serialize(s)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Fatalf("record must end with a newline")
	}

	got, err := Deserialize(b)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.ID != s.ID || got.Current != model.StepGoal || len(got.Steps) != 2 {
		t.Fatalf("restored session: %+v", got)
	}
	if got.Usage != s.Usage {
		t.Fatalf("usage: %+v vs %+v", got.Usage, s.Usage)
	}
	if len(got.Steps[1].Rejections) != 1 {
		t.Fatalf("rejection history lost")
	}
}

func TestDeserialize_RejectsFutureSchemaVersion(t *testing.T) {
	s := committedSession("v")
	s.Current = model.StepRole
	b, err := Serialize(s)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc["schema_version"] = model.SchemaVersion + 1
	bumped, _ := json.Marshal(doc)

	_, err = Deserialize(bumped)
	var te *TransitionError
	if !errors.As(err, &te) || !strings.Contains(te.Reason, "schema version") {
		t.Fatalf("expected schema version rejection, got %v", err)
	}
}

func TestDeserialize_RejectsCorruptRecords(t *testing.T) {
	if _, err := Deserialize([]byte("{not json")); err == nil {
		t.Fatalf("corrupt json must fail")
	}
	if _, err := Deserialize([]byte(`{"schema_version": 1}`)); err == nil {
		t.Fatalf("record without id must fail")
	}
}

func TestDeserialize_RejectsImpossibleSessions(t *testing.T) {
	mutate := func(f func(*model.Session)) []byte {
		s := committedSession("a", "b")
		s.Current = model.StepGoal
		f(s)
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}

	cases := [][]byte{
		// Pointer does not follow the committed prefix.
		mutate(func(s *model.Session) { s.Current = model.StepOutput }),
		// Committed steps out of canonical order.
		mutate(func(s *model.Session) { s.Steps[0].Type = model.StepRole }),
		// Terminal pointer without a full commit set.
		mutate(func(s *model.Session) { s.Current = model.StepDone }),
		mutate(func(s *model.Session) { s.Current = model.StepHarmonizing }),
	}
	for i, b := range cases {
		if _, err := Deserialize(b); err == nil {
			t.Fatalf("case %d: impossible session must be rejected", i)
		}
	}
}

func TestSaveLoadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := committedSession("intent v")
	s.Current = model.StepRole

	if err := SaveSession(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSession(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != s.ID || got.Current != model.StepRole {
		t.Fatalf("loaded session: %+v", got)
	}

	if _, err := LoadSession(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("missing file must fail")
	}
}
