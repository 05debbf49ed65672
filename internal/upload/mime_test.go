package upload

import "testing"

func TestGuessMIME(t *testing.T) {
	cases := map[string]string{
		"report.pdf":      "application/pdf",
		"scan.PNG":        "image/png",
		"invoice.docx":    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"notes.txt":       "text/plain",
		"data.unknownext": "application/octet-stream",
		"noextension":     "application/octet-stream",
	}
	for name, want := range cases {
		if got := GuessMIME(name); got != want {
			t.Errorf("GuessMIME(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSupportedExtensions(t *testing.T) {
	if !SupportedExtensions[".pdf"] {
		t.Error("expected .pdf to be supported")
	}
	if SupportedExtensions[".exe"] {
		t.Error("expected .exe to be unsupported")
	}
}
