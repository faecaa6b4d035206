package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSignatureZeroIsAbsent(t *testing.T) {
	var s Signature
	if !s.IsZero() {
		t.Fatal("expected zero signature to be absent")
	}
	if s.Encode() != "" {
		t.Errorf("expected empty encoding, got %q", s.Encode())
	}
	if s.Digest() != "" {
		t.Errorf("expected empty digest, got %q", s.Digest())
	}
}

func TestSignatureRoundTripIsByteExact(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x10, 'a', 'b'}
	s := NewSignature(raw)

	parsed, err := ParseSignature(s.Encode())
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if !parsed.Equal(s) {
		t.Fatal("expected decoded signature to equal original")
	}
	if string(parsed.Bytes()) != string(raw) {
		t.Fatalf("bytes changed: %v", parsed.Bytes())
	}
}

func TestNewSignatureCopiesInput(t *testing.T) {
	raw := []byte("state-1")
	s := NewSignature(raw)
	raw[0] = 'X'
	if string(s.Bytes()) != "state-1" {
		t.Fatalf("signature aliased caller buffer: %q", s.Bytes())
	}

	out := s.Bytes()
	out[0] = 'Y'
	if string(s.Bytes()) != "state-1" {
		t.Fatalf("Bytes leaked internal buffer: %q", s.Bytes())
	}
}

func TestSignatureNeverPrintsToken(t *testing.T) {
	s := NewSignature([]byte("super-secret-provider-state"))
	for _, out := range []string{s.String(), fmt.Sprintf("%v", s), fmt.Sprintf("%+v", s), fmt.Sprintf("%#v", s)} {
		if strings.Contains(out, "super-secret") {
			t.Errorf("token leaked in %q", out)
		}
	}
}

func TestParseSignatureRejectsGarbage(t *testing.T) {
	if _, err := ParseSignature("%%%not-base64"); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
}

func TestDecisionJSONUsesWireSignature(t *testing.T) {
	d := Decision{IsAllowed: true, Reasoning: "ok", NewSignature: NewSignature([]byte("abc"))}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"signature":"YWJj"`) {
		t.Fatalf("expected base64 signature, got %s", data)
	}

	var back Decision
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.NewSignature.Equal(d.NewSignature) {
		t.Fatal("signature did not survive JSON")
	}
}

func TestDecisionOutcome(t *testing.T) {
	if (Decision{IsAllowed: true}).Outcome() != OutcomeAllowed {
		t.Error("expected allowed outcome")
	}
	if (Decision{}).Outcome() != OutcomeDenied {
		t.Error("expected denied outcome")
	}
}
