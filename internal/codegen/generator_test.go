package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeStore struct {
	count    int64
	taken    map[string]bool
	takenLen map[int]bool // все коды этой длины заняты
	checks   int
}

func (s *fakeStore) CodeExists(_ context.Context, code string) (bool, error) {
	s.checks++
	if s.takenLen[len(code)] {
		return true, nil
	}
	return s.taken[code], nil
}

func (s *fakeStore) CountAppointments(context.Context) (int64, error) {
	return s.count, nil
}

func TestLengthFor(t *testing.T) {
	cases := []struct {
		count int64
		want  int
	}{
		{0, 6},
		{9_999, 6},
		{10_000, 7},
		{99_999, 7},
		{100_000, 8},
		{1_000_000, 9},
		{50_000_000, 9},
	}
	for _, tc := range cases {
		if got := LengthFor(tc.count); got != tc.want {
			t.Fatalf("LengthFor(%d) = %d, want %d", tc.count, got, tc.want)
		}
	}
}

func TestGenerate_UsesReducedAlphabet(t *testing.T) {
	g := New()
	store := &fakeStore{}

	for i := 0; i < 200; i++ {
		code, err := g.Generate(context.Background(), store)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != DefaultMinLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), DefaultMinLength)
		}
		if strings.ContainsAny(code, "0O1I") {
			t.Fatalf("code %q contains ambiguous characters", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(Alphabet, c) {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
	}
}

func TestGenerate_LengthGrowsWithCount(t *testing.T) {
	code, err := New().Generate(context.Background(), &fakeStore{count: 100_000})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected length 8 at 100k appointments, got %d", len(code))
	}
}

func TestGenerate_GrowsLengthAfterCollisions(t *testing.T) {
	g := New(WithAttempts(3))
	store := &fakeStore{takenLen: map[int]bool{6: true, 7: true}}

	code, err := g.Generate(context.Background(), store)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected length 8 after exhausting 6 and 7, got %d", len(code))
	}
	if store.checks != 7 {
		t.Fatalf("expected 3+3+1 uniqueness checks, got %d", store.checks)
	}
}

func TestGenerate_ExhaustionIsBounded(t *testing.T) {
	g := New(WithAttempts(2), WithMaxLength(7))
	store := &fakeStore{takenLen: map[int]bool{6: true, 7: true}}

	_, err := g.Generate(context.Background(), store)
	var exh *ExhaustionError
	if !errors.As(err, &exh) {
		t.Fatalf("expected ExhaustionError, got %v", err)
	}
	if exh.MaxLength != 7 || store.checks != 4 {
		t.Fatalf("unexpected exhaustion state: %+v checks=%d", exh, store.checks)
	}
}

func TestGenerate_StartLengthCappedByMax(t *testing.T) {
	g := New(WithMaxLength(7))

	code, err := g.Generate(context.Background(), &fakeStore{count: 5_000_000})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(code) != 7 {
		t.Fatalf("expected length capped at 7, got %d", len(code))
	}
}
