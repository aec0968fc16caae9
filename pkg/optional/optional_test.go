package optional

import (
	"encoding/json"
	"testing"
)

type payload struct {
	Name  Value[string] `json:"name,omitzero"`
	Score Value[int]    `json:"score,omitzero"`
}

func TestValue_ZeroIsAbsent(t *testing.T) {
	var v Value[int]
	if v.IsSet() {
		t.Fatal("expected zero Value to be absent")
	}
	if got := v.OrElse(7); got != 7 {
		t.Errorf("OrElse() = %d, want 7", got)
	}
	if v.Ptr() != nil {
		t.Error("expected nil Ptr for absent value")
	}
}

func TestValue_SomeZeroValueIsPresent(t *testing.T) {
	v := Some(0)
	got, ok := v.Get()
	if !ok || got != 0 {
		t.Fatalf("Get() = %d, %v; want 0, true", got, ok)
	}
	if v.IsZero() {
		t.Error("a present zero must not report IsZero")
	}
}

func TestFromPtr(t *testing.T) {
	if FromPtr[string](nil).IsSet() {
		t.Error("expected nil pointer to map to absent")
	}
	s := "rodilla"
	if got := FromPtr(&s); String(got) != "rodilla" {
		t.Errorf("FromPtr() = %q", String(got))
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	in := payload{Name: Some("Ana"), Score: Some(0)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"name":"Ana","score":0}` {
		t.Errorf("unexpected json %s", data)
	}

	var out payload
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestValue_JSONAbsent(t *testing.T) {
	data, err := json.Marshal(payload{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("expected absent fields to be omitted, got %s", data)
	}

	var out payload
	if err := json.Unmarshal([]byte(`{"name":null}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Name.IsSet() || out.Score.IsSet() {
		t.Errorf("expected null and missing to decode as absent, got %+v", out)
	}
}

func TestNonEmpty(t *testing.T) {
	if NonEmpty("").IsSet() {
		t.Error("expected empty string to be absent")
	}
	if !NonEmpty("x").IsSet() {
		t.Error("expected non-empty string to be present")
	}
}
