package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"reconbook/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"portList": portList,
}).ParseFS(templateFS, "templates/report.html"))

// TemplateData holds data for report template rendering
type TemplateData struct {
	Target         string
	GeneratedAt    time.Time
	TotalItems     int
	CompletedItems int
	Progress       int
	Items          []TemplateItem
	Scans          []TemplateScan
}

type TemplateItem struct {
	ItemID  int
	Checked bool
	Notes   string
}

type TemplateScan struct {
	Command      string
	ScanType     string
	CreatedAt    time.Time
	OSDetection  string
	ScanDuration string
	Notes        string
	Ports        []store.NmapPort
	Results      string
}

func newTemplateData(report Report) TemplateData {
	data := TemplateData{
		Target:         report.Target,
		GeneratedAt:    report.GeneratedAt,
		TotalItems:     report.TotalItems,
		CompletedItems: report.CompletedItems,
		Progress:       report.Progress,
		Items:          make([]TemplateItem, 0, len(report.Items)),
		Scans:          make([]TemplateScan, 0, len(report.Scans)),
	}
	for _, item := range report.Items {
		data.Items = append(data.Items, TemplateItem{ItemID: item.ItemID, Checked: item.Checked, Notes: item.Notes})
	}
	for _, scan := range report.Scans {
		data.Scans = append(data.Scans, TemplateScan{
			Command:      scan.Command,
			ScanType:     scan.ScanType,
			CreatedAt:    scan.CreatedAt,
			OSDetection:  scan.OSDetection,
			ScanDuration: scan.ScanDuration,
			Notes:        scan.Notes,
			Ports:        scan.Ports,
			Results:      scan.Results,
		})
	}
	return data
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func portList(ports []store.NmapPort) string {
	parts := make([]string, 0, len(ports))
	for _, port := range ports {
		parts = append(parts, fmt.Sprintf("%d/%s", port.Port, port.Protocol))
	}
	return strings.Join(parts, ", ")
}
