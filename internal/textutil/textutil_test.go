package textutil

import (
	"testing"
)

func TestMarkdownToText(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "heading and paragraph",
			input:     "# Tax Guide\n\nFiling is due in **May**.\n",
			wantTitle: "Tax Guide",
			wantBody:  "Tax Guide Filing is due in May.",
		},
		{
			name:      "no heading",
			input:     "First line\nsecond line\n\n- item one\n- item two\n",
			wantTitle: "",
			wantBody:  "First line second line item one item two",
		},
		{
			name:      "code block and link",
			input:     "## Setup\n\nSee [docs](https://example.go.kr).\n\n```\nmake build\n```\n",
			wantTitle: "Setup",
			wantBody:  "Setup See docs. make build",
		},
		{
			name:  "empty",
			input: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := MarkdownToText([]byte(tt.input))
			if title != tt.wantTitle {
				t.Errorf("MarkdownToText() title = %q, want %q", title, tt.wantTitle)
			}
			if body != tt.wantBody {
				t.Errorf("MarkdownToText() body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "  no   markup ", "no markup"},
		{"highlight tags", "the <b>income</b> tax &amp; fees", "the income tax & fees"},
		{"script dropped", "<p>before</p><script>alert(1)</script><p>after</p>", "before after"},
		{"line breaks", "one<br>two", "one two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.input); got != tt.want {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("가나다라마", 3); got != "가나다…" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("short", 0); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
}
