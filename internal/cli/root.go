package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dental-inference-service/internal/apiclient"
)

var (
	serverURL  string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "panoctl",
		Short: "Client for the panoramic X-ray analysis service",
		Long: `panoctl drives the dental panoramic X-ray analysis service from the
command line: submit images for analysis, follow remote jobs, and check
service health.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the analysis service")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print the raw JSON response")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newClient() *apiclient.Client {
	return apiclient.New(serverURL)
}

func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
