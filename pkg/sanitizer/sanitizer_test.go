package sanitizer

import (
	"testing"

	"licensedesk/pkg/model"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"local mobile", "0300 1234567", "+923001234567"},
		{"international", "+92 300 1234567", "+923001234567"},
		{"dashes", "0300-123-4567", "+923001234567"},
		{"already e164", "+923001234567", "+923001234567"},
		{"uae number", "+971 50 123 4567", "+971501234567"},
		{"whitespace", "   ", ""},
		{"garbage", "call me", ""},
		{"too short", "123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if got := NormalizePhone(NormalizePhone(tt.input)); got != tt.want {
				t.Errorf("NormalizePhone is not idempotent for %q: %q", tt.input, got)
			}
		})
	}
}

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Ayesha   Khan ", "Ayesha Khan"},
		{"Lahore\t\nDHA", "Lahore DHA"},
		{"", ""},
		{"   ", ""},
		{"IELTS", "IELTS"},
	}

	for _, tt := range tests {
		if got := TrimAndNormalize(tt.input); got != tt.want {
			t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{" HTTPS://Files.Example.com/proofs/a.png ", "https://files.example.com/proofs/a.png"},
		{"https://example.com/a?utm_source=x&id=7", "https://example.com/a?id=7"},
		{"example.com/a", ""},
		{"ftp://example.com/a", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.input); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeGuest(t *testing.T) {
	g := &model.GuestContact{Name: "  Bilal   Ahmed", Email: " Bilal@Example.COM ", Phone: "0300 1234567"}
	SanitizeGuest(g)

	if g.Name != "Bilal Ahmed" || g.Email != "bilal@example.com" || g.Phone != "+923001234567" {
		t.Fatalf("unexpected guest after sanitize: %+v", g)
	}

	SanitizeGuest(nil)
}

func TestPipeline(t *testing.T) {
	p := Pipeline{NormalizeEmail, func(s string) string { return s + "!" }}
	if got := p.Apply("  A@B.C "); got != "a@b.c!" {
		t.Fatalf("Pipeline.Apply = %q", got)
	}
}
