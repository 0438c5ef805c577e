package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv(envInstanceID, " replica-3 ")
	if got := GetID(); got != "replica-3" {
		t.Fatalf("expected env id, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv(envInstanceID, "")
	if got := GetID(); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
