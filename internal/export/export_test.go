package export

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Session v1.2", "My-Session-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "transcript"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderTranscriptHTML(t *testing.T) {
	data := TemplateData{
		Title:       "Planning Session",
		ProjectName: "Test Project",
		OwnerName:   "avery",
		UpdatedAt:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Messages: []TemplateMessage{
			{Index: 1, Role: "user", Author: "avery", Body: "What is the plan?", SentAt: time.Now()},
			{Index: 2, Role: "assistant", Body: "Here is the plan.", SentAt: time.Now()},
		},
	}

	html, err := RenderTranscriptHTML(data)
	if err != nil {
		t.Fatalf("RenderTranscriptHTML() error = %v", err)
	}

	if !strings.Contains(html, "Planning Session") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "Test Project") {
		t.Error("HTML missing project name")
	}
	if !strings.Contains(html, "What is the plan?") {
		t.Error("HTML missing user message")
	}
	if !strings.Contains(html, "Here is the plan.") {
		t.Error("HTML missing assistant message")
	}
	// Message bodies are user input; they must come out escaped.
	dataWithMarkup := data
	dataWithMarkup.Messages = []TemplateMessage{
		{Index: 1, Role: "user", Body: "<script>alert(1)</script>", SentAt: time.Now()},
	}
	html, err = RenderTranscriptHTML(dataWithMarkup)
	if err != nil {
		t.Fatalf("RenderTranscriptHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("message body was not escaped")
	}
}
