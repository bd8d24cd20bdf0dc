// Package cmd implements the qcflat command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "qcflat",
	Short: "Flatten quality-control JSON documents into TSV tables",
	Long: `qcflat converts nested quality-control JSON documents into flat,
tab-separated tables following a schema descriptor, optionally enriching
rows from NCBI E-utilities, and reconciles assembly accessions between
tables produced independently.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

// Execute runs the root command. SIGINT and SIGTERM cancel the run.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = errColor.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// hostFS serves absolute OS paths, so file and SQLite inputs share names.
func hostFS() billy.Filesystem {
	return osfs.New("/")
}

func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

func absPaths(ps []string) ([]string, error) {
	out := make([]string, len(ps))
	for i, p := range ps {
		abs, err := absPath(p)
		if err != nil {
			return nil, err
		}
		out[i] = abs
	}
	return out, nil
}
