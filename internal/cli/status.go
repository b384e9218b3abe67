package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a remote analysis job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := newClient().JobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(raw)
		}

		var view struct {
			JobID  string          `json:"job_id"`
			Status string          `json:"status"`
			Output json.RawMessage `json:"output"`
			Error  string          `json:"error"`
		}
		if err := json.Unmarshal(raw, &view); err != nil {
			fmt.Println(string(raw))
			return nil
		}

		fmt.Printf("job %s: %s\n", view.JobID, view.Status)
		if view.Error != "" {
			fmt.Printf("error: %s\n", view.Error)
		}
		if len(view.Output) > 0 {
			var result analysisView
			if err := json.Unmarshal(view.Output, &result); err == nil && len(result.Findings) > 0 {
				printFindingsTable(result.Findings)
			} else {
				fmt.Println("use --json for the full output")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
