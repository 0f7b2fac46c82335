package channels

import (
	"testing"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text no special chars",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "backslash in path causes parse error without fix",
			input: `C:\Users\name\file.txt`,
			want:  `C:\\Users\\name\\file\.txt`,
		},
		{
			name:  "fenced code block preserved, content escaped per spec",
			input: "```go\nfmt.Println(`hello`)\n```",
			want:  "```go\nfmt.Println(\\`hello\\`)\n```",
		},
		{
			name:  "fenced code block with backslash inside",
			input: "```\npath = C:\\Users\\\n```",
			want:  "```\npath = C:\\\\Users\\\\\n```",
		},
		{
			name:  "inline code preserved",
			input: "use `os.Exit(1)` to quit",
			want:  "use `os.Exit(1)` to quit",
		},
		{
			name:  "inline code with backslash inside",
			input: "try `C:\\path`",
			want:  "try `C:\\\\path`",
		},
		{
			name:  "special chars in regular text escaped",
			input: "price: 1.5$ (discount: -10%)",
			want:  `price: 1\.5$ \(discount: \-10%\)`,
		},
		{
			name:  "bold markdown becomes escaped literal",
			input: "**bold** and _italic_",
			want:  `\*\*bold\*\* and \_italic\_`,
		},
		{
			name:  "unterminated fence escaped",
			input: "broken ```code",
			want:  "broken \\`\\`\\`code",
		},
		{
			name:  "unterminated inline backtick escaped",
			input: "lone ` tick",
			want:  "lone \\` tick",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeMarkdownV2(tt.input)
			if got != tt.want {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"short unchanged", "hi", 10, "hi"},
		{"exact length unchanged", "12345", 5, "12345"},
		{"long truncated", "1234567890", 5, "12345..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.limit); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.want)
			}
		})
	}
}
