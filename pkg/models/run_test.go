package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRunStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status RunStatus
		want   bool
	}{
		{"running is valid", RunRunning, true},
		{"ok is valid", RunOK, true},
		{"error is valid", RunError, true},
		{"cancelled is valid", RunCancelled, true},
		{"empty string is invalid", RunStatus(""), false},
		{"british spelling is invalid", RunStatus("canceled"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("RunStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunRunning, false},
		{RunOK, true},
		{RunError, true},
		{RunCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("RunStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(90 * time.Second)
	run := Run{StartedAt: start, FinishedAt: &end}

	if got := run.Duration(); got != 90*time.Second {
		t.Errorf("Duration() = %v, want %v", got, 90*time.Second)
	}

	running := Run{StartedAt: time.Now().Add(-time.Second)}
	if got := running.Duration(); got < time.Second {
		t.Errorf("Duration() for running run = %v, want >= 1s", got)
	}
}

func TestTask_Snapshot(t *testing.T) {
	task := Task{ID: "t1", Kind: "transcribe", Payload: json.RawMessage(`{"lang":"cs"}`), SubjectRef: "p-7"}

	var decoded map[string]any
	if err := json.Unmarshal(task.Snapshot(), &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if decoded["id"] != "t1" || decoded["kind"] != "transcribe" || decoded["subjectRef"] != "p-7" {
		t.Errorf("unexpected snapshot fields: %v", decoded)
	}
	payload, ok := decoded["payload"].(map[string]any)
	if !ok || payload["lang"] != "cs" {
		t.Errorf("payload = %v, want lang=cs", decoded["payload"])
	}
}

func TestTask_SnapshotInvalidPayload(t *testing.T) {
	task := Task{ID: "t1", Kind: "k", Payload: json.RawMessage(`{not json`)}

	var decoded map[string]any
	if err := json.Unmarshal(task.Snapshot(), &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if _, ok := decoded["payload"]; ok {
		t.Error("invalid payload should be dropped from the snapshot")
	}
}

func TestObservationType_Terminal(t *testing.T) {
	terminal := []ObservationType{ObservationFinished, ObservationError, ObservationCancelled}
	for _, typ := range terminal {
		if !typ.Terminal() {
			t.Errorf("%q should be terminal", typ)
		}
	}
	for _, typ := range []ObservationType{ObservationHello, ObservationEvent, ObservationWarning} {
		if typ.Terminal() {
			t.Errorf("%q should not be terminal", typ)
		}
	}
}
