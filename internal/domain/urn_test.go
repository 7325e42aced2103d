package domain

import (
	"encoding/json"
	"errors"
	"testing"

	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

func TestParseUrn_SinglePart(t *testing.T) {
	u, err := ParseUrn("urn:li:corpuser:alice")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.EntityType() != "corpuser" {
		t.Fatalf("entity type: got %q", u.EntityType())
	}
	if got := u.Parts(); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("parts: got %v", got)
	}
	if u.String() != "urn:li:corpuser:alice" {
		t.Fatalf("canonical: got %q", u.String())
	}
}

func TestParseUrn_TupleWithNestedUrn(t *testing.T) {
	raw := "urn:li:dataset:(urn:li:dataPlatform:hive,db.users,PROD)"
	u, err := ParseUrn(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	parts := u.Parts()
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %v", parts)
	}
	if parts[0] != "urn:li:dataPlatform:hive" || parts[1] != "db.users" || parts[2] != "PROD" {
		t.Fatalf("unexpected parts: %v", parts)
	}
	if u.String() != raw {
		t.Fatalf("round-trip: got %q want %q", u.String(), raw)
	}
}

func TestParseUrn_NestedTupleUrn(t *testing.T) {
	raw := "urn:li:dataJob:(urn:li:dataFlow:(airflow,daily_etl,prod),extract_users)"
	u, err := ParseUrn(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	parts := u.Parts()
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %v", parts)
	}
	if parts[0] != "urn:li:dataFlow:(airflow,daily_etl,prod)" {
		t.Fatalf("nested flow urn mangled: %q", parts[0])
	}
	if u.String() != raw {
		t.Fatalf("round-trip: got %q", u.String())
	}

	nested, err := ParseUrn(parts[0])
	if err != nil {
		t.Fatalf("parse nested: %v", err)
	}
	if got := nested.Parts(); len(got) != 3 || got[0] != "airflow" {
		t.Fatalf("nested parts: %v", got)
	}
}

func TestParseUrn_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"urn:li:",
		"urn:li:dataset",
		"urn:li:dataset:",
		"foo:li:dataset:x",
		"urn:li:dataset:(a,b",
		"urn:li:dataset:(a))",
	} {
		if _, err := ParseUrn(raw); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("ParseUrn(%q): expected ErrInvalidArgument, got %v", raw, err)
		}
	}
}

func TestNewUrn_RejectsEmptyParts(t *testing.T) {
	if _, err := NewUrn("dataset"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for no parts, got %v", err)
	}
	if _, err := NewUrn("dataset", "a", ""); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty part, got %v", err)
	}
}

func TestUrn_JSONRoundTrip(t *testing.T) {
	u := MustParseUrn("urn:li:dataset:(urn:li:dataPlatform:kafka,events,PROD)")
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Urn
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !u.Equal(back) {
		t.Fatalf("round-trip mismatch: %q vs %q", u.String(), back.String())
	}
}

func TestUrn_EqualityAndZero(t *testing.T) {
	a := MustParseUrn("urn:li:corpuser:alice")
	b := MustParseUrn("urn:li:corpuser:alice")
	c := MustParseUrn("urn:li:corpuser:bob")
	if !a.Equal(b) {
		t.Fatalf("expected equal urns")
	}
	if a.Equal(c) {
		t.Fatalf("expected unequal urns")
	}
	var zero Urn
	if !zero.IsZero() || a.IsZero() {
		t.Fatalf("IsZero misbehaved")
	}
}
