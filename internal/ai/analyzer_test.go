package ai

import (
	"strings"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}  \n", `{"a":1}`},
		{"fence without trailing newline", "```json\n[1,2]```", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripCodeFence(tt.input)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseSpeakerTurnsBareArray(t *testing.T) {
	turns, err := parseSpeakerTurns(`[{"speaker":"Dr. Reed","text":"I arrived at nine."}]`)
	if err != nil {
		t.Fatalf("Failed to parse turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(turns))
	}
	if turns[0].Speaker != "Dr. Reed" {
		t.Errorf("Expected speaker 'Dr. Reed', got %q", turns[0].Speaker)
	}
	if turns[0].Text != "I arrived at nine." {
		t.Errorf("Expected turn text, got %q", turns[0].Text)
	}
}

func TestParseSpeakerTurnsWrappedObject(t *testing.T) {
	turns, err := parseSpeakerTurns(`{"turns":[{"speaker":"Counsel","text":"State your name."},{"speaker":"Witness","text":"Jane Doe."}]}`)
	if err != nil {
		t.Fatalf("Failed to parse wrapped turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	if turns[1].Speaker != "Witness" {
		t.Errorf("Expected second speaker 'Witness', got %q", turns[1].Speaker)
	}
}

func TestParseSpeakerTurnsRejectsGarbage(t *testing.T) {
	if _, err := parseSpeakerTurns("not json at all"); err == nil {
		t.Error("Expected error for non-JSON input")
	}
	if _, err := parseSpeakerTurns(`{"note":"no array here"}`); err == nil {
		t.Error("Expected error for object without a turn array")
	}
}

func TestDocumentsContext(t *testing.T) {
	got := documentsContext([]DocumentInput{
		{Name: "contract.pdf", Content: "Signed on March 1."},
		{Name: "email.txt", Content: "See attached."},
	})
	if !strings.Contains(got, "Document: contract.pdf\nContent: Signed on March 1.") {
		t.Errorf("Expected first document block, got %q", got)
	}
	if !strings.Contains(got, "\n\nDocument: email.txt") {
		t.Errorf("Expected documents separated by a blank line, got %q", got)
	}
	if documentsContext(nil) != "" {
		t.Error("Expected empty context for no documents")
	}
}
