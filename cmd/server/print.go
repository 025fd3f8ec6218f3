package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"intake-chat/internal/core"
	"intake-chat/internal/render"
)

var printOut string

var printCmd = &cobra.Command{
	Use:   "print-record <record.json>",
	Short: "Render a saved patient record as a printable HTML document",
	Long: `Reads a patient record in the cloud function JSON format (for example the
"record" field of GET /api/sessions/{id}) and writes the printable document.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("%s is not valid JSON", args[0])
		}

		state := core.NewState()
		state.ApplyBackendUpdate(core.UpdateFromJSON(data, nil, nil))
		record := state.Record()

		out := os.Stdout
		if printOut != "" {
			f, err := os.Create(printOut)
			if err != nil {
				return fmt.Errorf("creating %s: %w", printOut, err)
			}
			defer f.Close()
			out = f
		}
		return render.PrintableRecord(out, record, time.Now())
	},
}

func init() {
	printCmd.Flags().StringVarP(&printOut, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(printCmd)
}
