package domain

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
)

// FindingEntry is one clinical finding: the affected tooth in FDI notation,
// the finding label, and the model confidence.
type FindingEntry struct {
	FDI     string  `json:"fdi"`
	Finding string  `json:"finding"`
	Score   float64 `json:"score"`
}

// FindingReport is the per-image findings table written next to the other
// pipeline outputs.
type FindingReport struct {
	Name    string
	Entries []FindingEntry
}

var findingCSVHeader = []string{"file_name", "fdi", "finding", "score"}

// WriteCSV emits the report in its wire format: a fixed header, then one row
// per entry with the report name in file_name. An empty report still gets
// the header.
func (r *FindingReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(findingCSVHeader); err != nil {
		return err
	}
	for _, e := range r.Entries {
		row := []string{r.Name, e.FDI, e.Finding, strconv.FormatFloat(e.Score, 'f', -1, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r *FindingReport) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AnalysisResult is what a local pipeline run produces on disk.
type AnalysisResult struct {
	Findings  []FindingEntry
	CSVPath   string
	OutputDir string
	Files     []string
}

// LocalAnalysis is the client-facing product of a local analysis, with every
// output file resolved to a public URL. It is also the unit the result cache
// stores.
type LocalAnalysis struct {
	PatientName string            `json:"patient_name"`
	Findings    []FindingEntry    `json:"findings"`
	NumFindings int               `json:"num_findings"`
	Files       map[string]string `json:"files"`
	S3Bucket    string            `json:"s3_bucket"`
	S3Prefix    string            `json:"s3_prefix"`
}
