package pdf

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/jung-kurt/gofpdf"

	"taskagent/internal/models"
)

// Generator renders task reports.
type Generator interface {
	GenerateTaskReport(w io.Writer, data TaskReportData) error
}

type TaskReportData struct {
	UserID      string
	GeneratedAt time.Time
	Filters     map[string]string
	Tasks       []models.Task
}

// ReportGenerator lays out reports on A4. With FontPath set a UTF-8 TTF
// font is embedded; otherwise the core Helvetica font is used and text is
// translated to cp1252.
type ReportGenerator struct {
	FontPath string
	fontName string
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	name := "Helvetica"
	if fontPath != "" {
		name = "DejaVu"
	}
	return &ReportGenerator{FontPath: fontPath, fontName: name}
}

var columns = []struct {
	title string
	width float64
}{
	{"Title", 62},
	{"Status", 26},
	{"Priority", 20},
	{"Created", 31},
	{"Due", 31},
}

func (g *ReportGenerator) GenerateTaskReport(w io.Writer, data TaskReportData) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Task report", false)
	pdf.SetAuthor("taskagent", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	g.addFont(pdf)
	tr := g.translator(pdf)

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 18)
	pdf.CellFormat(0, 10, "Task report", "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, data.GeneratedAt.UTC().Format("Mon Jan 02 2006 15:04 MST"), "", 1, "C", false, 0, "")
	g.hr(pdf)

	g.sectionTitle(pdf, "Summary")
	counts := countByStatus(data.Tasks)
	g.kvLine(pdf, "Total", fmt.Sprintf("%d", len(data.Tasks)))
	for _, s := range []models.TaskStatus{models.StatusPending, models.StatusInProgress, models.StatusCompleted, models.StatusOverDue} {
		g.kvLine(pdf, string(s), fmt.Sprintf("%d", counts[s]))
	}
	if len(data.Filters) > 0 {
		pdf.Ln(1)
		g.sectionTitle(pdf, "Filters")
		for _, k := range slices.Sorted(maps.Keys(data.Filters)) {
			g.kvLine(pdf, k, tr(data.Filters[k]))
		}
	}
	g.hr(pdf)

	g.sectionTitle(pdf, "Tasks")
	if len(data.Tasks) == 0 {
		pdf.MultiCell(0, 6, "No tasks found for the given filters.", "", "L", false)
		return pdf.Output(w)
	}

	pdf.SetFont(g.fontName, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range columns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(g.fontName, "", 10)
	for _, t := range data.Tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.UTC().Format("2006-01-02")
		}
		cells := []string{
			truncate(pdf, t.Title, columns[0].width-2, tr),
			string(t.Status),
			string(t.Priority),
			t.CreatedAt.UTC().Format("2006-01-02"),
			due,
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 6, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

func (g *ReportGenerator) addFont(pdf *gofpdf.Fpdf) {
	if g.FontPath == "" {
		return
	}
	pdf.AddUTF8Font(g.fontName, "", g.FontPath)
	pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
}

func (g *ReportGenerator) translator(pdf *gofpdf.Fpdf) func(string) string {
	if g.FontPath != "" {
		return func(s string) string { return s }
	}
	return pdf.UnicodeTranslatorFromDescriptor("")
}

func (g *ReportGenerator) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
}

func (g *ReportGenerator) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *ReportGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(15, y, 195, y)
	pdf.SetY(y + 2)
}

// truncate shortens s to fit width. It cuts on runes before translating so
// multi-byte text is never split.
func truncate(pdf *gofpdf.Fpdf, s string, width float64, tr func(string) string) string {
	if pdf.GetStringWidth(tr(s)) <= width {
		return tr(s)
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(tr(string(r)+"...")) > width {
		r = r[:len(r)-1]
	}
	return tr(string(r) + "...")
}

func countByStatus(tasks []models.Task) map[models.TaskStatus]int {
	out := make(map[models.TaskStatus]int, 4)
	for _, t := range tasks {
		out[t.Status]++
	}
	return out
}
