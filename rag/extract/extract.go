package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"jaytaylor.com/html2text"
)

// SupportedExtensions lists the file types Text can handle.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".csv", ".html", ".htm"}

// Supported reports whether the file at path has an extension Text can
// process.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Text extracts the plain-text content of the file at path, dispatching
// on the file extension.
func Text(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(path)
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(content), nil
	case ".csv":
		return csvText(path)
	case ".html", ".htm":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return html2text.FromString(string(content), html2text.Options{PrettyTables: true})
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

func pdfText(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	if _, err := buf.ReadFrom(b); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// csvText renders a CSV file as readable rows ("header: value | ...") so
// that column names stay attached to their values after chunking.
func csvText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var sb strings.Builder
	fmt.Fprintf(&sb, "CSV file with %d rows and %d columns\n", len(records)-1, len(header))
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(header, ", "))

	for i, record := range records[1:] {
		fields := make([]string, 0, len(record))
		for j, val := range record {
			name := fmt.Sprintf("column %d", j+1)
			if j < len(header) {
				name = header[j]
			}
			fields = append(fields, fmt.Sprintf("%s: %s", name, val))
		}
		fmt.Fprintf(&sb, "Row %d: %s\n", i+1, strings.Join(fields, " | "))
	}

	return sb.String(), nil
}
