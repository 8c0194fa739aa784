package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

func TestJSONDecodeValue(t *testing.T) {
	want := company{ID: "A", Name: "apple", Category: "tech"}
	data, err := JSON{}.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode[company](JSON{}, data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded company mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONDecodePointer(t *testing.T) {
	data, err := JSON{}.Marshal(&company{ID: "B", Name: "boeing"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode[*company](JSON{}, data)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "B" || got.Name != "boeing" {
		t.Fatalf("unexpected decoded pointer: %+v", got)
	}
}

func TestJSONMarshalIsStable(t *testing.T) {
	c := company{ID: "C", Name: "cargill", Category: "food"}
	a, _ := JSON{}.Marshal(c)
	b, _ := JSON{}.Marshal(c)
	if string(a) != string(b) {
		t.Fatalf("json encoding not stable: %s vs %s", a, b)
	}
}

func TestJSONUnmarshalGarbage(t *testing.T) {
	if _, err := Decode[company](JSON{}, []byte("{not json")); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}

func TestProtoRoundTrip(t *testing.T) {
	data, err := Proto{}.Marshal(wrapperspb.String("dell"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode[*wrapperspb.StringValue](Proto{}, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.GetValue() != "dell" {
		t.Fatalf("Value = %q, want dell", got.GetValue())
	}
}

func TestProtoRejectsNonMessage(t *testing.T) {
	_, err := Proto{}.Marshal(company{ID: "A"})
	if !errors.Is(err, ErrNotProto) {
		t.Fatalf("Marshal error = %v, want ErrNotProto", err)
	}
	var c company
	if err := (Proto{}).Unmarshal([]byte{}, &c); !errors.Is(err, ErrNotProto) {
		t.Fatalf("Unmarshal error = %v, want ErrNotProto", err)
	}
}
