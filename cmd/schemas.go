package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/agentic-research/qcflat/internal/enrich"
	"github.com/agentic-research/qcflat/internal/schema"
	"github.com/spf13/cobra"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List built-in schema descriptors and enrichment capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listSchemas(cmd.OutOrStdout())
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <name|file>",
	Short: "Print a descriptor as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSchema(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	schemasCmd.AddCommand(schemaShowCmd)
	rootCmd.AddCommand(schemasCmd)
}

func listSchemas(w io.Writer) error {
	_, _ = fmt.Fprintln(w, "schemas:")
	for _, name := range schema.Names() {
		d, err := schema.Builtin(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "  %-16s top_level=%s columns=%d rules=%d\n", name, d.TopLevel, len(d.Columns), len(d.Rules))
	}
	_, _ = fmt.Fprintln(w, "capabilities:")
	for _, c := range enrich.Capabilities() {
		_, _ = fmt.Fprintf(w, "  %s\n", c)
	}
	return nil
}

func showSchema(w io.Writer, ref string) error {
	d, err := schema.Load(ref)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
