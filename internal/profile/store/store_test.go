package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Options{DBPath: filepath.Join(t.TempDir(), "profile.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSlotReplaceAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceSlot(ctx, "color", []string{"red", "green", "red", ""}); err != nil {
		t.Fatalf("replace slot: %v", err)
	}

	values, err := s.SlotValues(ctx, "color")
	if err != nil {
		t.Fatalf("slot values: %v", err)
	}
	if len(values) != 2 || values[0] != "green" || values[1] != "red" {
		t.Fatalf("unexpected values: %v", values)
	}

	if err := s.ReplaceSlot(ctx, "color", []string{"blue"}); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	values, err = s.SlotValues(ctx, "color")
	if err != nil {
		t.Fatalf("slot values: %v", err)
	}
	if len(values) != 1 || values[0] != "blue" {
		t.Fatalf("replace is not atomic: %v", values)
	}
}

func TestSlotNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.SlotValues(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.DeleteSlot(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestSentencesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	templates := []string{
		"turn (on | off){state} the light",
		"switch the light (on | off){state}",
	}
	if err := s.ReplaceSentences(ctx, "ChangeLightState", templates); err != nil {
		t.Fatalf("replace sentences: %v", err)
	}
	if err := s.ReplaceSentences(ctx, "GetTime", []string{"what time is it"}); err != nil {
		t.Fatalf("replace sentences: %v", err)
	}

	sentences, err := s.Sentences(ctx)
	if err != nil {
		t.Fatalf("sentences: %v", err)
	}
	if len(sentences) != 2 {
		t.Fatalf("unexpected intent count: %d", len(sentences))
	}
	if len(sentences["ChangeLightState"]) != 2 {
		t.Fatalf("templates lost: %v", sentences["ChangeLightState"])
	}

	if err := s.DeleteSentences(ctx, "GetTime"); err != nil {
		t.Fatalf("delete sentences: %v", err)
	}
	sentences, err = s.Sentences(ctx)
	if err != nil {
		t.Fatalf("sentences: %v", err)
	}
	if _, still := sentences["GetTime"]; still {
		t.Fatal("deleted intent still present")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	s, err := Open(Options{DBPath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.ReplaceSlot(ctx, "room", []string{"kitchen", "bedroom"}); err != nil {
		t.Fatalf("replace slot: %v", err)
	}
	s.Close()

	s, err = Open(Options{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	values, err := s.SlotValues(ctx, "room")
	if err != nil {
		t.Fatalf("slot values after reopen: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("values lost across reopen: %v", values)
	}
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	rw, err := Open(Options{DBPath: path})
	if err != nil {
		t.Fatalf("open rw: %v", err)
	}
	if err := rw.ReplaceSlot(ctx, "color", []string{"red"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rw.Close()

	ro, err := Open(Options{DBPath: path, ReadOnly: true})
	if err != nil {
		t.Fatalf("open ro: %v", err)
	}
	defer ro.Close()

	if err := ro.ReplaceSlot(ctx, "color", []string{"blue"}); err == nil {
		t.Fatal("read-only store accepted a write")
	}
	if _, err := ro.SlotValues(ctx, "color"); err != nil {
		t.Fatalf("read-only read failed: %v", err)
	}
}
