package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"chatrelay/internal/models"
)

// Generator — интерфейс (удобно мокать в тестах)
type Generator interface {
	WriteTranscript(w io.Writer, conversationID string, turns []*models.Turn) error
}

// TranscriptGenerator — реализация на gofpdf
type TranscriptGenerator struct {
	appName string
}

func NewTranscriptGenerator(appName string) *TranscriptGenerator {
	if appName == "" {
		appName = "chatrelay"
	}
	return &TranscriptGenerator{appName: appName}
}

func (g *TranscriptGenerator) WriteTranscript(w io.Writer, conversationID string, turns []*models.Turn) error {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("Transcript %s", conversationID), false)
	doc.SetAuthor(g.appName, false)
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()

	// ===== Заголовок
	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, "CONVERSATION TRANSCRIPT", "", 1, "C", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	sub := fmt.Sprintf("%s  /  exported %s", conversationID, time.Now().Format("02.01.2006 15:04"))
	doc.CellFormat(0, 7, tr(sub), "", 1, "C", false, 0, "")
	g.hr(doc)

	for _, t := range turns {
		doc.SetFont("Helvetica", "B", 11)
		label := fmt.Sprintf("%s  —  %s", t.Role, t.CreatedAt.Format("02.01.2006 15:04:05"))
		doc.CellFormat(0, 7, tr(label), "", 1, "L", false, 0, "")

		doc.SetFont("Helvetica", "", 11)
		doc.MultiCell(0, 6, tr(t.Content), "", "L", false)
		doc.Ln(3)
	}

	if len(turns) == 0 {
		doc.SetFont("Helvetica", "I", 11)
		doc.CellFormat(0, 7, "(empty conversation)", "", 1, "L", false, 0, "")
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("transcript pdf output: %w", err)
	}
	return nil
}

func (g *TranscriptGenerator) hr(doc *gofpdf.Fpdf) {
	doc.Ln(2)
	x, y := doc.GetXY()
	pageW, _ := doc.GetPageSize()
	doc.Line(x, y, pageW-20, y)
	doc.Ln(4)
}
