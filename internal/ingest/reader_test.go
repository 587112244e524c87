package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadHTML(t *testing.T) {
	doc := `<html><head><title>Standup</title><style>p { color: red }</style></head>
<body>
  <h1>Weekly   standup</h1>
  <p><b>Alice</b>: I will fix the &amp; bug.</p>
  <script>var x = "Bob: not text";</script>
  <p>Bob: agreed<br>see you</p>
</body></html>`

	got, err := ReadHTML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadHTML: %v", err)
	}
	want := "Standup\nWeekly standup\nAlice : I will fix the & bug.\nBob: agreed\nsee you"
	if got != want {
		t.Errorf("ReadHTML =\n%q\nwant\n%q", got, want)
	}
}

func TestReadSource_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.md")
	if err := os.WriteFile(path, []byte("Alice: hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSource(path)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if got != "Alice: hi\n" {
		t.Errorf("ReadSource = %q", got)
	}
}

func TestReadSource_HTMLByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.HTML")
	if err := os.WriteFile(path, []byte("<p>Alice: hi</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSource(path)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if got != "Alice: hi" {
		t.Errorf("ReadSource = %q", got)
	}
}

func TestReadSource_Missing(t *testing.T) {
	for _, name := range []string{"absent.txt", "absent.pdf", "absent.html"} {
		if _, err := ReadSource(filepath.Join(t.TempDir(), name)); err == nil {
			t.Errorf("ReadSource(%s) succeeded", name)
		}
	}
}

func TestReadPDF_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(path, []byte("plain text, not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPDF(path); err == nil {
		t.Error("ReadPDF accepted a non-pdf file")
	}
}
