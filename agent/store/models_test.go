package storex

import (
	"strings"
	"testing"
	"time"
)

func TestProfilePatchIsEmpty(t *testing.T) {
	if !(ProfilePatch{}).IsEmpty() {
		t.Fatalf("zero patch must be empty")
	}
	if (ProfilePatch{Note: "  "}).IsEmpty() == false {
		t.Fatalf("whitespace note must count as empty")
	}
	if (ProfilePatch{AddTriggers: []string{"noise"}}).IsEmpty() {
		t.Fatalf("patch with additions must not be empty")
	}
}

func TestProfilePatchApplyDeduplicates(t *testing.T) {
	profile := &StudentProfile{
		Name:     "Alex",
		Triggers: []string{"loud noises"},
	}
	patch := ProfilePatch{
		AddTriggers: []string{"Loud Noises", "crowds"},
	}

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	patch.Apply(profile, now)

	if len(profile.Triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %v", profile.Triggers)
	}
	if profile.Triggers[0] != "loud noises" || profile.Triggers[1] != "crowds" {
		t.Fatalf("unexpected triggers: %v", profile.Triggers)
	}
	if !profile.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt not set: %v", profile.UpdatedAt)
	}
}

func TestProfilePatchApplyRemovesCaseInsensitively(t *testing.T) {
	profile := &StudentProfile{
		Name:              "Maya",
		SuccessfulMethods: []string{"Visual schedules", "quiet corner"},
	}
	patch := ProfilePatch{
		RemoveSuccessfulMethods: []string{"visual schedules"},
		Note:                    "responded well to music today",
	}

	patch.Apply(profile, time.Now())

	if len(profile.SuccessfulMethods) != 1 || profile.SuccessfulMethods[0] != "quiet corner" {
		t.Fatalf("unexpected methods: %v", profile.SuccessfulMethods)
	}
	if len(profile.Notes) != 1 {
		t.Fatalf("expected note appended, got %v", profile.Notes)
	}
}

func TestProfilePatchSummary(t *testing.T) {
	patch := ProfilePatch{
		AddTriggers:      []string{"fire alarms"},
		AddFailedMethods: []string{"time-outs"},
		RemoveTriggers:   []string{"crowds"},
		Note:             "calmer after lunch",
	}

	summary := patch.Summary()
	if len(summary) != 4 {
		t.Fatalf("expected 4 summary lines, got %v", summary)
	}
	joined := strings.Join(summary, "\n")
	for _, want := range []string{"fire alarms", "time-outs", "crowds", "calmer after lunch"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("summary missing %q: %v", want, summary)
		}
	}
}
