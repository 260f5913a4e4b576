package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestForFileRouting(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		wantErr  bool
	}{
		{"resume.txt", "*ingest.TextExtractor", false},
		{"notes", "*ingest.TextExtractor", false},
		{"resume.md", "*ingest.MarkdownExtractor", false},
		{"resume.MARKDOWN", "*ingest.MarkdownExtractor", false},
		{"profile.html", "*ingest.HTMLExtractor", false},
		{"profile.htm", "*ingest.HTMLExtractor", false},
		{"cv.pdf", "*ingest.PDFExtractor", false},
		{"cv.docx", "*ingest.DOCXExtractor", false},
		{"photo.png", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			ex, err := ForFile(tt.filename)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported extension")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := fmt.Sprintf("%T", ex)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("resume.pdf") {
		t.Error("pdf should be supported")
	}
	if IsSupported("archive.zip") {
		t.Error("zip should not be supported")
	}
}

func TestTextExtractor(t *testing.T) {
	input := "Merry Lamb\nSoftware Engineer\n\n\nExperience:\n2019-2023 Acme Corp\n"
	got, err := (&TextExtractor{}).Extract(strings.NewReader(input), "resume.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Merry Lamb\nSoftware Engineer\n\nExperience:\n2019-2023 Acme Corp"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestMarkdownExtractor(t *testing.T) {
	input := "# Merry Lamb\n\nSoftware engineer in Omaha.\n\n## Experience\n\n- Acme Corp, 2019-2023\n"
	got, err := (&MarkdownExtractor{}).Extract(strings.NewReader(input), "resume.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, fragment := range []string{"Merry Lamb", "Software engineer in Omaha.", "Experience", "Acme Corp, 2019-2023"} {
		if !strings.Contains(got, fragment) {
			t.Errorf("expected output to contain %q, got %q", fragment, got)
		}
	}
	if strings.Contains(got, "#") {
		t.Errorf("markdown syntax should not survive extraction: %q", got)
	}
}

func TestHTMLExtractor(t *testing.T) {
	input := `<html><head><title>CV</title><style>p{color:red}</style></head>
<body><nav>Home | About</nav>
<h1>Merry Lamb</h1>
<p>Engineer at Acme.</p>
<script>alert('x')</script>
<ul><li>Go</li><li>Python</li></ul>
</body></html>`
	got, err := (&HTMLExtractor{}).Extract(strings.NewReader(input), "cv.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, fragment := range []string{"Merry Lamb", "Engineer at Acme.", "Go", "Python"} {
		if !strings.Contains(got, fragment) {
			t.Errorf("expected output to contain %q, got %q", fragment, got)
		}
	}
	for _, excluded := range []string{"alert", "color:red", "Home | About"} {
		if strings.Contains(got, excluded) {
			t.Errorf("expected %q to be stripped, got %q", excluded, got)
		}
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		check func(t *testing.T, got string)
	}{
		{
			name:  "short text untouched",
			text:  "hello world",
			limit: 100,
			check: func(t *testing.T, got string) {
				if got != "hello world" {
					t.Errorf("got %q", got)
				}
			},
		},
		{
			name:  "zero limit untouched",
			text:  "hello world",
			limit: 0,
			check: func(t *testing.T, got string) {
				if got != "hello world" {
					t.Errorf("got %q", got)
				}
			},
		},
		{
			name:  "long text bounded",
			text:  strings.Repeat("word ", 100),
			limit: 50,
			check: func(t *testing.T, got string) {
				if len(got) > 50 {
					t.Errorf("excerpt exceeds limit: %d chars", len(got))
				}
				if strings.HasSuffix(got, " ") {
					t.Error("excerpt should be trimmed")
				}
			},
		},
		{
			name:  "multibyte runes not split",
			text:  strings.Repeat("é", 100),
			limit: 51,
			check: func(t *testing.T, got string) {
				if !strings.HasSuffix(got, "é") {
					t.Errorf("excerpt ends mid-rune: %q", got[len(got)-1:])
				}
			},
		},
		{
			name:  "surrounding whitespace trimmed",
			text:  "  padded  ",
			limit: 100,
			check: func(t *testing.T, got string) {
				if got != "padded" {
					t.Errorf("got %q", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Excerpt(tt.text, tt.limit))
		})
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.txt")
	if err := os.WriteFile(path, []byte("Merry Lamb\nEngineer\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FromFile(path, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Merry Lamb") {
		t.Errorf("unexpected excerpt: %q", got)
	}

	if _, err := FromFile(filepath.Join(dir, "missing.txt"), 1000); err == nil {
		t.Error("expected error for missing file")
	}

	unsupported := filepath.Join(dir, "image.png")
	if err := os.WriteFile(unsupported, []byte{0x89}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(unsupported, 1000); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
