package models

import (
	"errors"
	"testing"
	"time"
)

func TestBannerValidate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	base := Banner{Name: "Spring sale", SlotName: "Header", ImageRef: "img/spring.png"}

	testCases := []struct {
		name    string
		mutate  func(b *Banner)
		wantErr error
	}{
		{name: "valid without schedule", mutate: func(b *Banner) {}},
		{name: "valid with schedule", mutate: func(b *Banner) { b.ScheduleStart, b.ScheduleEnd = &start, &end }},
		{name: "only start", mutate: func(b *Banner) { b.ScheduleStart = &start }},
		{name: "end before start", mutate: func(b *Banner) { b.ScheduleStart, b.ScheduleEnd = &end, &start }, wantErr: ErrInvalidSchedule},
		{name: "end equals start", mutate: func(b *Banner) { b.ScheduleStart, b.ScheduleEnd = &start, &start }, wantErr: ErrInvalidSchedule},
		{name: "missing name", mutate: func(b *Banner) { b.Name = " " }, wantErr: ErrMissingField},
		{name: "missing slot", mutate: func(b *Banner) { b.SlotName = "" }, wantErr: ErrMissingField},
		{name: "missing image", mutate: func(b *Banner) { b.ImageRef = "" }, wantErr: ErrMissingField},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := base
			tc.mutate(&b)
			err := b.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSlotScopes(t *testing.T) {
	agnostic := Slot{Name: "Footer", AllowedScopes: []string{AllScopes}}
	if !agnostic.ScopeAgnostic() || !agnostic.AllowsScope("news") {
		t.Fatalf("expected scope-agnostic slot to allow any scope")
	}

	empty := Slot{Name: "Sidebar"}
	if !empty.ScopeAgnostic() {
		t.Fatalf("expected slot without scopes to be scope-agnostic")
	}

	scoped := Slot{Name: "Header", AllowedScopes: []string{"news", "events"}, Capacity: 1}
	if scoped.ScopeAgnostic() {
		t.Fatalf("expected scoped slot not to be scope-agnostic")
	}
	if !scoped.AllowsScope("news") || !scoped.AllowsScope("") || !scoped.AllowsScope(DefaultScope) {
		t.Fatalf("expected declared and general scopes to be allowed")
	}
	if scoped.AllowsScope("classifieds") {
		t.Fatalf("expected undeclared scope to be rejected")
	}
	if scoped.Unbounded() {
		t.Fatalf("capacity 1 slot reported unbounded")
	}
}
