package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

func TestFormatSeconds(t *testing.T) {
	tests := map[int64]string{
		0:     "0:00:00",
		59:    "0:00:59",
		3600:  "1:00:00",
		30630: "8:30:30",
	}
	for in, want := range tests {
		if got := FormatSeconds(in); got != want {
			t.Fatalf("FormatSeconds(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestRomanize(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"王艳", "Wang Yan"},
		{"王小明", "Wang Xiaoming"},
		{"Siti 王", "Siti Wang"},
		{"Budi", "Budi"},
	}
	for _, tt := range tests {
		if got := Romanize(tt.name); got != tt.want {
			t.Fatalf("Romanize(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	r.compress = false
	return r
}

// utf16be is how text drawn with a UTF-8 font appears in the content stream.
func utf16be(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

func TestAttendancesProducesPDF(t *testing.T) {
	checkIn := time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC)
	checkOut := checkIn.Add(8 * time.Hour)
	worked := int64(8 * 3600)

	rows := []*domain.Attendance{
		{EmployeeID: 5, WorkDate: "2024-06-03", CheckInTime: checkIn, CheckOutTime: &checkOut, TotalWorkingSeconds: &worked, Employee: &domain.Employee{Name: "Siti"}},
		{EmployeeID: 6, WorkDate: "2024-06-03", CheckInTime: checkIn},
	}

	var buf bytes.Buffer
	if err := newTestRenderer(t).Attendances(&buf, "Attendance report", checkOut, time.UTC, rows); err != nil {
		t.Fatalf("Attendances: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
	if !bytes.Contains(buf.Bytes(), utf16be("Siti")) {
		t.Fatal("employee name missing from the table")
	}
}

func TestAttendancesWritesChineseNamesInPinyin(t *testing.T) {
	checkIn := time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC)
	rows := []*domain.Attendance{
		{EmployeeID: 7, WorkDate: "2024-06-03", CheckInTime: checkIn, Employee: &domain.Employee{Name: "王艳"}},
	}

	var buf bytes.Buffer
	if err := newTestRenderer(t).Attendances(&buf, "Attendance report", checkIn, time.UTC, rows); err != nil {
		t.Fatalf("Attendances: %v", err)
	}
	out := buf.Bytes()
	if bytes.Contains(out, []byte("(王艳)Tj")) {
		t.Fatal("raw UTF-8 name written into a text operator")
	}
	if bytes.Contains(out, utf16be("王艳")) {
		t.Fatal("Han name drawn with a font that has no Han glyphs")
	}
	if !bytes.Contains(out, utf16be("Wang Yan")) {
		t.Fatal("romanized name missing from the table")
	}
}

func TestNewRendererRejectsUnreadableFont(t *testing.T) {
	if _, err := NewRenderer(filepath.Join(t.TempDir(), "missing.ttf")); err == nil {
		t.Fatal("expected error for a missing font file")
	}

	path := filepath.Join(t.TempDir(), "broken.ttf")
	if err := os.WriteFile(path, []byte("this is plain text, not a TrueType font file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRenderer(path); err == nil {
		t.Fatal("expected error for a file that is not TrueType")
	}
}
