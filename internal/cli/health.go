package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health and model state",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := newClient().Health(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(raw)
		}

		var view struct {
			Status          string `json:"status"`
			ModelsLoaded    bool   `json:"models_loaded"`
			ModelsAvailable bool   `json:"models_available"`
		}
		if err := json.Unmarshal(raw, &view); err != nil {
			fmt.Println(string(raw))
			return nil
		}

		fmt.Printf("status: %s\n", view.Status)
		fmt.Printf("models loaded: %t\n", view.ModelsLoaded)
		fmt.Printf("models available: %t\n", view.ModelsAvailable)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
