package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dental-inference-service/internal/apiclient"
)

var (
	analyzeBucket  string
	analyzePrefix  string
	analyzePatient string
	analyzeMode    string
	analyzeDebug   bool
	analyzeWait    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Submit a panoramic X-ray for analysis",
	Long: `Submit a panoramic X-ray for analysis.

Without --mode the service decides: remote when a provider is configured,
local otherwise. Remote analyses return a job id immediately; add --wait to
block until the job finishes.

Examples:
  panoctl analyze scan.png --bucket results --prefix patients/jane/
  panoctl analyze scan.png --mode local --bucket results --debug
  panoctl analyze scan.png --mode remote --bucket results --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := newClient().Analyze(cmd.Context(), args[0], apiclient.AnalyzeOptions{
			Mode:    analyzeMode,
			Bucket:  analyzeBucket,
			Prefix:  analyzePrefix,
			Patient: analyzePatient,
			Debug:   analyzeDebug,
			Wait:    analyzeWait,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(raw)
		}
		return printAnalysis(raw)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeBucket, "bucket", "", "object storage bucket or bucket URL for results")
	analyzeCmd.Flags().StringVar(&analyzePrefix, "prefix", "", "key prefix for uploaded results")
	analyzeCmd.Flags().StringVar(&analyzePatient, "patient", "", "patient name recorded with the analysis")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "force 'local' or 'remote' execution")
	analyzeCmd.Flags().BoolVar(&analyzeDebug, "debug", false, "produce debug imagery alongside the findings")
	analyzeCmd.Flags().BoolVar(&analyzeWait, "wait", false, "block until a remote job finishes")
	rootCmd.AddCommand(analyzeCmd)
}

type findingView struct {
	FDI     string  `json:"fdi"`
	Finding string  `json:"finding"`
	Score   float64 `json:"score"`
}

type analysisView struct {
	Status      string            `json:"status"`
	PatientName string            `json:"patient_name"`
	JobID       string            `json:"job_id"`
	StatusURL   string            `json:"status_url"`
	Findings    []findingView     `json:"findings"`
	NumFindings int               `json:"num_findings"`
	Files       map[string]string `json:"files"`
	Result      json.RawMessage   `json:"result"`
}

func printAnalysis(raw json.RawMessage) error {
	var view analysisView
	if err := json.Unmarshal(raw, &view); err != nil {
		fmt.Println(string(raw))
		return nil
	}

	if view.JobID != "" {
		fmt.Printf("job %s submitted\n", view.JobID)
		fmt.Printf("follow it with: panoctl status %s\n", view.JobID)
		return nil
	}

	if len(view.Result) > 0 {
		var result analysisView
		if err := json.Unmarshal(view.Result, &result); err == nil {
			result.PatientName = view.PatientName
			printCompleted(&result)
			return nil
		}
	}

	printCompleted(&view)
	return nil
}

func printCompleted(view *analysisView) {
	if view.PatientName != "" {
		fmt.Printf("patient: %s\n", view.PatientName)
	}
	if len(view.Findings) == 0 {
		fmt.Println("no findings")
	} else {
		printFindingsTable(view.Findings)
	}
	printFiles(view.Files)
}

func printFindingsTable(findings []findingView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOTH\tFINDING\tSCORE")
	for _, f := range findings {
		fmt.Fprintf(w, "%s\t%s\t%.2f\n", f.FDI, f.Finding, f.Score)
	}
	w.Flush()
}

func printFiles(files map[string]string) {
	if len(files) == 0 {
		return
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("files:")
	for _, name := range names {
		fmt.Printf("  %s\t%s\n", name, files[name])
	}
}
