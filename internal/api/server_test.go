package api

import "testing"

func TestSplitCSV_TrimsAndDropsEmpty(t *testing.T) {
	got := splitCSV(" construction, ict ,,agriculture")
	want := []string{"construction", "ict", "agriculture"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSplitCSV_EmptyInputReturnsNil(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestAtoiOr_FallsBackOnInvalidInput(t *testing.T) {
	if got := atoiOr("not-a-number", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
	if got := atoiOr("7", 42); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := atoiOr("", 42); got != 42 {
		t.Fatalf("expected fallback for empty string, got %d", got)
	}
}
