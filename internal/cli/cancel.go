package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a remote analysis job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := newClient().CancelJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(raw)
		}

		var view struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &view); err != nil {
			fmt.Println(string(raw))
			return nil
		}
		fmt.Printf("job %s: %s\n", view.JobID, view.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
