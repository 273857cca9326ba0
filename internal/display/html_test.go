package display

import (
	"strings"
	"testing"

	"ulsdb/internal/store"
)

func TestWriteRecordHTML(t *testing.T) {
	t.Parallel()
	lic := &store.License{
		UniqueSystemIdentifier: 1000,
		CallSign:               "W1AW",
		EntityName:             "ARRL HQ OPERATORS CLUB",
		ApplicantTypeCode:      "B",
		City:                   "Newington",
		State:                  "CT",
		ZipCode:                "06111",
	}
	var buf strings.Builder
	if err := WriteRecordHTML(&buf, lic); err != nil {
		t.Fatalf("WriteRecordHTML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"<h2>W1AW</h2>",
		"ARRL HQ OPERATORS CLUB",
		"Amateur Club (B)",
		"Newington, CT 06111",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("fragment missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Email") {
		t.Errorf("empty email should be omitted:\n%s", out)
	}
}

func TestWriteRecordHTMLEscapes(t *testing.T) {
	t.Parallel()
	lic := &store.License{
		CallSign:   "K1XSS",
		EntityName: `<script>alert("x")</script>`,
	}
	var buf strings.Builder
	if err := WriteRecordHTML(&buf, lic); err != nil {
		t.Fatalf("WriteRecordHTML: %v", err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Errorf("entity name not escaped:\n%s", buf.String())
	}
}
