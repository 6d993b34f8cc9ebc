// Package report writes crawl results to an XLSX workbook.
package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/crawlforge/crawlforge/internal/extractor"
	"github.com/crawlforge/crawlforge/internal/issues"
	"github.com/crawlforge/crawlforge/internal/links"
)

const (
	SheetURLs   = "URLs"
	SheetLinks  = "Links"
	SheetIssues = "Issues"
)

var urlColumns = []string{
	"URL", "Status Code", "Depth", "Title", "Meta Description", "H1",
	"Word Count", "Canonical URL", "Robots", "Internal Links",
	"External Links", "Images", "Response Time (ms)", "Size (bytes)",
	"Content Type", "Internal", "JS Rendered", "Linked From", "Details",
}

var linkColumns = []string{
	"Source URL", "Target URL", "Anchor Text", "Internal",
	"Target Domain", "Target Status", "Placement",
}

var issueColumns = []string{
	"URL", "Type", "Category", "Issue", "Details",
}

// WriteWorkbook writes one workbook with URLs, Links and Issues sheets
// to the given path.
func WriteWorkbook(path string, records []*extractor.Record, edges []links.Record, found []issues.Issue) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"00C853"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	if err := writeSheet(f, SheetURLs, headerStyle, urlColumns, urlRows(records)); err != nil {
		return err
	}
	if err := writeSheet(f, SheetLinks, headerStyle, linkColumns, linkRows(edges)); err != nil {
		return err
	}
	if err := writeSheet(f, SheetIssues, headerStyle, issueColumns, issueRows(found)); err != nil {
		return err
	}

	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(SheetURLs); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, headerStyle int, columns []string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(name, cell, col)
		f.SetCellStyle(name, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		width := float64(len(col) + 5)
		if width < 15 {
			width = 15
		}
		if width > 50 {
			width = 50
		}
		f.SetColWidth(name, colName, colName, width)
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(name, cell, value); err != nil {
				return fmt.Errorf("write cell %s!%s: %w", name, cell, err)
			}
		}
	}
	return nil
}

func urlRows(records []*extractor.Record) [][]interface{} {
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.URL,
			rec.StatusCode,
			rec.Depth,
			rec.Title,
			rec.MetaDescription,
			rec.H1,
			rec.WordCount,
			rec.CanonicalURL,
			rec.Robots,
			rec.InternalLinks,
			rec.ExternalLinks,
			len(rec.Images),
			rec.ResponseTimeMs,
			rec.SizeBytes,
			rec.ContentType,
			yesNo(rec.IsInternal),
			yesNo(rec.JavaScriptRendered),
			strings.Join(rec.LinkedFrom, ", "),
			rec.Details,
		})
	}
	return rows
}

func linkRows(edges []links.Record) [][]interface{} {
	rows := make([][]interface{}, 0, len(edges))
	for _, edge := range edges {
		rows = append(rows, []interface{}{
			edge.SourceURL,
			edge.TargetURL,
			edge.AnchorText,
			yesNo(edge.IsInternal),
			edge.TargetDomain,
			edge.TargetStatus,
			string(edge.Placement),
		})
	}
	return rows
}

func issueRows(found []issues.Issue) [][]interface{} {
	rows := make([][]interface{}, 0, len(found))
	for _, iss := range found {
		rows = append(rows, []interface{}{
			iss.URL,
			iss.Type,
			iss.Category,
			iss.Issue,
			iss.Details,
		})
	}
	return rows
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
