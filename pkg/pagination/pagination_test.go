package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -4: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123, loc), ID: uuid.New()}

	token := EncodeCursor(want)
	for _, r := range token {
		if r == '+' || r == '/' || r == '=' {
			t.Fatalf("token %q is not url safe", token)
		}
	}

	got, err := ParseCursor(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("cursor mismatch: got %+v want %+v", got, want)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should mean first page, got %v %v", c, err)
	}
	bad := []string{
		"not-a-cursor",
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-03-01T00:00:00Z"}`)),
	}
	for _, token := range bad {
		if _, err := ParseCursor(token); err == nil {
			t.Fatalf("expected error for %q", token)
		}
	}
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	position := func(id uuid.UUID) Cursor { return Cursor{CreatedAt: base, ID: id} }

	page, next := Trim(ids, 2, position)
	if len(page) != 2 || next == "" {
		t.Fatalf("expected a trimmed page with cursor, got %d %q", len(page), next)
	}
	cursor, err := ParseCursor(next)
	if err != nil || cursor.ID != ids[1] {
		t.Fatalf("cursor should point at last returned row, got %v %v", cursor, err)
	}

	page, next = Trim(ids, 3, position)
	if len(page) != 3 || next != "" {
		t.Fatalf("last page has no cursor, got %d %q", len(page), next)
	}
}
