package cmd

import (
	"fmt"
	"io"

	"github.com/agentic-research/qcflat/internal/reconcile"
	billy "github.com/go-git/go-billy/v5"
	"github.com/spf13/cobra"
)

type reconcileFlags struct {
	Input         string
	NoHeader      bool
	IDCol         string
	OrgCol        string
	TSV1, TSV1Col string
	TSV2, TSV2Col string
	MaxIncrements int
	Out           string
	TSV1Updated   string
	TSV2Updated   string
}

var reconcileOpts reconcileFlags

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report accessions missing from two tables and repair GCF/GCA mismatches",
	Long: `reconcile checks every accession of --input against the identifier
columns of two tables. A GCF accession missing from a table is searched there
as GCA_<digits>.<version+i> for i up to --max-increments; rows found that way
are written to an updated subset of that table, re-labelled with the GCF
accession. Accessions still missing from either table are reported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := reconcileOpts
		paths := []*string{&f.Input, &f.TSV1, &f.TSV2, &f.Out, &f.TSV1Updated, &f.TSV2Updated}
		for _, p := range paths {
			abs, err := absPath(*p)
			if err != nil {
				return err
			}
			*p = abs
		}
		return runReconcile(hostFS(), f, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&reconcileOpts.Input, "input", "", "TSV list of accessions to check")
	f.BoolVar(&reconcileOpts.NoHeader, "no-header", false, "Input has no header row; columns are 0-based indexes")
	f.StringVar(&reconcileOpts.IDCol, "id-col", "genome_assembly_id", "Accession column of the input")
	f.StringVar(&reconcileOpts.OrgCol, "org-col", "", "Organism column of the input")
	f.StringVar(&reconcileOpts.TSV1, "tsv1", "", "First table (e.g. ngsQC_ARGOS.tsv)")
	f.StringVar(&reconcileOpts.TSV1Col, "tsv1-col", "", "Identifier column of the first table")
	f.StringVar(&reconcileOpts.TSV2, "tsv2", "", "Second table (e.g. biosampleMeta_ARGOS.tsv)")
	f.StringVar(&reconcileOpts.TSV2Col, "tsv2-col", "", "Identifier column of the second table")
	f.IntVar(&reconcileOpts.MaxIncrements, "max-increments", reconcile.DefaultMaxIncrements, "Highest GCA version offset searched")
	f.StringVar(&reconcileOpts.Out, "out", "", "Report path (default stdout)")
	f.StringVar(&reconcileOpts.TSV1Updated, "tsv1-updated-out", "", "Subset path for the first table (default <tsv1>_updated.tsv)")
	f.StringVar(&reconcileOpts.TSV2Updated, "tsv2-updated-out", "", "Subset path for the second table (default <tsv2>_updated.tsv)")
	for _, name := range []string{"input", "tsv1", "tsv1-col", "tsv2", "tsv2-col"} {
		_ = reconcileCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(fs billy.Filesystem, f reconcileFlags, stdout, stderr io.Writer) error {
	if f.MaxIncrements < 0 {
		return fmt.Errorf("--max-increments must not be negative, got %d", f.MaxIncrements)
	}
	sum, err := reconcile.Run(fs, reconcile.Options{
		Input:    f.Input,
		NoHeader: f.NoHeader,
		IDCol:    f.IDCol,
		OrgCol:   f.OrgCol,
		Tables: []reconcile.TableSpec{
			{Path: f.TSV1, Col: f.TSV1Col, UpdatedOut: f.TSV1Updated},
			{Path: f.TSV2, Col: f.TSV2Col, UpdatedOut: f.TSV2Updated},
		},
		MaxIncrements: f.MaxIncrements,
		Out:           f.Out,
	}, stdout)
	if err != nil {
		return err
	}

	if sum.ReportPath != "" {
		_, _ = okColor.Fprintf(stderr, "wrote report: %s (%d rows)\n", sum.ReportPath, len(sum.Report))
	}
	for i, s := range sum.Subsets {
		if s.Path == "" {
			_, _ = fmt.Fprintf(stderr, "no fixes required for table %d (%s)\n", i+1, s.Table)
			continue
		}
		_, _ = okColor.Fprintf(stderr, "wrote table %d updated subset: %s (%d rows)\n", i+1, s.Path, s.Rows)
	}
	if n := len(sum.Report); n > 0 {
		_, _ = warnColor.Fprintf(stderr, "%d of %d accessions need manual review\n", n, sum.Entries)
	}
	return nil
}
