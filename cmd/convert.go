package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/agentic-research/qcflat/api"
	"github.com/agentic-research/qcflat/internal/enrich"
	"github.com/agentic-research/qcflat/internal/entrez"
	"github.com/agentic-research/qcflat/internal/ingest"
	"github.com/agentic-research/qcflat/internal/project"
	"github.com/agentic-research/qcflat/internal/schema"
	"github.com/agentic-research/qcflat/internal/sink"
	billy "github.com/go-git/go-billy/v5"
	"github.com/spf13/cobra"
)

// DefaultCachePath is the taxonomy cache used when --cache is not given.
const DefaultCachePath = ".ncbi_tax_cache.json"

type convertOptions struct {
	Schema   string
	Out      string
	SQLite   string
	APIKey   string
	Email    string
	BaseURL  string
	Cache    string
	Interval time.Duration
	Quiet    bool
}

var convertOpts convertOptions

var convertCmd = &cobra.Command{
	Use:   "convert [inputs...]",
	Short: "Convert JSON documents (files, directories or SQLite databases) into a TSV table",
	Example: `  qcflat convert --schema assembly-hive data/ --out assemblyQC.tsv.gz
  qcflat convert --schema ngs-aphis --api-key $NCBI_API_KEY runs.db --sqlite stage.db
  qcflat convert --schema ./columns_assembly.json doc.json > out.tsv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := convertOpts
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv("NCBI_API_KEY")
		}
		if opts.Email == "" {
			opts.Email = os.Getenv("NCBI_EMAIL")
		}
		inputs, err := absPaths(args)
		if err != nil {
			return err
		}
		for _, p := range []*string{&opts.Out, &opts.SQLite, &opts.Cache} {
			if *p == "-" {
				continue
			}
			if *p, err = absPath(*p); err != nil {
				return err
			}
		}
		return runConvert(cmd.Context(), hostFS(), opts, inputs, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertOpts.Schema, "schema", "s", "", "Built-in schema name or descriptor file (.hcl or .json)")
	f.StringVarP(&convertOpts.Out, "out", "o", "-", "Output TSV path; a .gz suffix compresses, - writes to stdout")
	f.StringVar(&convertOpts.SQLite, "sqlite", "", "Also stage rows into this SQLite database")
	f.StringVar(&convertOpts.APIKey, "api-key", "", "NCBI API key (default $NCBI_API_KEY)")
	f.StringVar(&convertOpts.Email, "email", "", "Contact email sent to NCBI (default $NCBI_EMAIL)")
	f.StringVar(&convertOpts.BaseURL, "eutils-url", entrez.DefaultBaseURL, "E-utilities base URL")
	f.StringVar(&convertOpts.Cache, "cache", DefaultCachePath, "Taxonomy cache file")
	f.DurationVar(&convertOpts.Interval, "interval", 0, "Minimum delay between E-utilities calls (default 110ms with a key, 340ms without)")
	f.BoolVarP(&convertOpts.Quiet, "quiet", "q", false, "Suppress per-document progress")
	_ = convertCmd.MarkFlagRequired("schema")
	rootCmd.AddCommand(convertCmd)
}

// runConvert converts inputs, all names in fs. Out "-" or "" writes to stdout.
func runConvert(ctx context.Context, fs billy.Filesystem, opts convertOptions, inputs []string, stdout, stderr io.Writer) error {
	desc, err := schema.Load(opts.Schema)
	if err != nil {
		return err
	}

	var enricher project.Enricher
	if desc.HasKind(api.KindEnriched) {
		client := entrez.New(entrez.Config{
			BaseURL:  opts.BaseURL,
			APIKey:   opts.APIKey,
			Email:    opts.Email,
			Interval: opts.Interval,
		})
		var cache *enrich.Cache
		if opts.Cache != "" {
			cache = enrich.OpenCache(fs, opts.Cache)
		}
		enricher = enrich.New(client, cache)
		_, _ = fmt.Fprintf(stderr, "enrichment: E-utilities at %s, %s between calls\n", opts.BaseURL, client.Interval())
	}
	p, err := project.New(desc, enricher)
	if err != nil {
		return fmt.Errorf("schema %s: %w", desc.Name, err)
	}

	out, err := openSinks(fs, desc, opts, stdout)
	if err != nil {
		return err
	}

	e := ingest.NewEngine(fs, desc.TopLevel, p, out)
	if !opts.Quiet {
		e.Progress = stderr
	}
	start := time.Now()
	stats, runErr := e.Run(ctx, inputs)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}

	switch {
	case errors.Is(runErr, ingest.ErrNoRecords):
		_, _ = warnColor.Fprintf(stderr, "no records found under %q (%d documents, %d skipped)\n", desc.TopLevel, stats.Documents, stats.Skipped)
		return nil
	case runErr != nil:
		return runErr
	}
	_, _ = okColor.Fprintf(stderr, "wrote %d rows from %d documents (%d skipped) in %s\n",
		stats.Records, stats.Documents, stats.Skipped, time.Since(start).Round(time.Millisecond))
	return nil
}

func openSinks(fs billy.Filesystem, desc *api.Descriptor, opts convertOptions, stdout io.Writer) (sink.Sink, error) {
	var sinks []sink.Sink
	if opts.Out == "" || opts.Out == "-" {
		sinks = append(sinks, sink.NewTSVWriter(stdout))
	} else {
		s, err := sink.NewTSV(fs, opts.Out)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if opts.SQLite != "" {
		s, err := sink.NewSQLite(opts.SQLite, sink.TableName(desc.Name))
		if err != nil {
			_ = sinks[0].Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sink.Tee(sinks...), nil
}
