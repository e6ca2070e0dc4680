package report

import (
	"embed"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

//go:embed fonts/DejaVuSans.ttf fonts/DejaVuSans-Bold.ttf
var fonts embed.FS

const family = "ReportSans"

var columns = []struct {
	title string
	width float64
}{
	{"Date", 25},
	{"Employee", 50},
	{"Check in", 25},
	{"Check out", 25},
	{"Worked", 25},
}

// Renderer draws attendance reports with a Unicode TrueType font.
//
// The bundled DejaVu Sans has no Han ideographs, so unless a font that covers them is
// configured, Chinese names are printed in pinyin.
type Renderer struct {
	regular  []byte
	bold     []byte
	han      bool
	compress bool
}

// NewRenderer uses the bundled font when fontPath is empty. Otherwise fontPath must name a
// TrueType font with Han coverage; it is used for every cell.
func NewRenderer(fontPath string) (*Renderer, error) {
	if fontPath == "" {
		regular, err := fonts.ReadFile("fonts/DejaVuSans.ttf")
		if err != nil {
			return nil, err
		}
		bold, err := fonts.ReadFile("fonts/DejaVuSans-Bold.ttf")
		if err != nil {
			return nil, err
		}
		return &Renderer{regular: regular, bold: bold, compress: true}, nil
	}

	font, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("reading report font: %w", err)
	}
	// fail at startup rather than on the first report
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(family, "", font)
	pdf.SetFont(family, "", 10)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("loading report font %s: %w", fontPath, err)
	}

	return &Renderer{regular: font, bold: font, han: true, compress: true}, nil
}

// Attendances renders rows as a PDF table into w, times shown in loc.
func (r *Renderer) Attendances(w io.Writer, title string, generatedAt time.Time, loc *time.Location, rows []*domain.Attendance) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.AddUTF8FontFromBytes(family, "", r.regular)
	pdf.AddUTF8FontFromBytes(family, "B", r.bold)
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.Cell(40, 10, title)
	pdf.Ln(10)
	pdf.SetFont(family, "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s (%s)", generatedAt.In(loc).Format("2006-01-02 15:04"), loc))
	pdf.Ln(10)

	pdf.SetFont(family, "B", 10)
	pdf.SetFillColor(229, 231, 235)
	for _, c := range columns {
		pdf.CellFormat(c.width, 7, c.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(family, "", 10)
	var total int64
	for _, a := range rows {
		name := fmt.Sprintf("#%d", a.EmployeeID)
		if a.Employee != nil && a.Employee.Name != "" {
			name = r.displayName(a.Employee.Name)
		}

		checkOut, worked := "-", "-"
		if a.CheckOutTime != nil {
			checkOut = a.CheckOutTime.In(loc).Format("15:04:05")
		}
		if a.TotalWorkingSeconds != nil {
			worked = FormatSeconds(*a.TotalWorkingSeconds)
			total += *a.TotalWorkingSeconds
		}

		cells := []string{a.WorkDate, name, a.CheckInTime.In(loc).Format("15:04:05"), checkOut, worked}
		for i, c := range columns {
			pdf.CellFormat(c.width, 7, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont(family, "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("%d records, %s worked in total", len(rows), FormatSeconds(total)))

	return pdf.Output(w)
}

func (r *Renderer) displayName(name string) string {
	if r.han || !strings.ContainsFunc(name, isHan) {
		return name
	}
	return Romanize(name)
}

func isHan(c rune) bool {
	return unicode.Is(unicode.Han, c)
}

// Romanize spells the Han characters of name in pinyin: the first syllable of a run as the
// surname, the rest joined as the given name, e.g. 王小明 -> Wang Xiaoming.
func Romanize(name string) string {
	var b strings.Builder
	syllables := 0
	for _, c := range name {
		if !isHan(c) {
			b.WriteRune(c)
			syllables = 0
			continue
		}

		p := pinyin.LazyPinyin(string(c), pinyin.NewArgs())
		if len(p) == 0 || p[0] == "" {
			b.WriteRune('?')
			continue
		}
		s := p[0]
		if syllables < 2 {
			if syllables == 1 {
				b.WriteByte(' ')
			}
			s = strings.ToUpper(s[:1]) + s[1:]
		}
		b.WriteString(s)
		syllables++
	}
	return b.String()
}

// FormatSeconds renders a duration as H:MM:SS.
func FormatSeconds(seconds int64) string {
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
