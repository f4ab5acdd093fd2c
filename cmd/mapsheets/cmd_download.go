// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mapsheets/mapsheets/internal/config"
	"github.com/mapsheets/mapsheets/internal/fetch"
	"github.com/mapsheets/mapsheets/internal/jobs"
	"github.com/mapsheets/mapsheets/internal/registry"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

func newDownloadCmd() *cobra.Command {
	var (
		q            queryFlags
		tileServers  []string
		outDir       string
		zoom         int
		concurrency  int
		ratePerSec   float64
		retries      int
		timeout      time.Duration
		cacheDir     string
		cacheTTL     time.Duration
		overwrite    bool
		allowMissing bool
		metadataFile string
	)

	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and stitch the sheets a query selects",
		Long: `download fetches every tile of each selected sheet, stitches them into
one PNG per sheet and appends the sheet metadata to a tab-separated file
in the output directory. A sheet whose download fails is logged and
skipped; the remaining sheets still complete.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tileServers) == 0 {
				return fmt.Errorf("at least one --tile-server is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ix, err := sheets.Load(q.metadata)
			if err != nil {
				return err
			}
			sel, err := q.selection(ix)
			if err != nil {
				return err
			}

			var cache *fetch.Cache
			if cacheDir != "" {
				cache, err = fetch.OpenCache(cacheDir, cacheTTL)
				if err != nil {
					return fmt.Errorf("open tile cache: %w", err)
				}
				defer func() {
					_ = cache.Close()
				}()
			}

			dl, err := fetch.New(tileServers, fetch.Options{
				Timeout:       timeout,
				Retries:       retries,
				RatePerSecond: ratePerSec,
				Concurrency:   concurrency,
				Cache:         cache,
			})
			if err != nil {
				return err
			}

			reg, err := registry.Open(filepath.Join(outDir, "sheets.db"))
			if err != nil {
				return fmt.Errorf("open sheet registry: %w", err)
			}
			defer func() {
				_ = reg.Close()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "downloading %d sheet(s) at zoom %d to %s\n", len(sel), zoom, outDir)

			runner := jobs.NewRunner(dl, reg)
			progress, err := runner.Run(ctx, sel, jobs.Options{
				Zoom:         zoom,
				OutDir:       outDir,
				MetadataFile: metadataFile,
				Overwrite:    overwrite,
				AllowMissing: allowMissing,
			}, func(p jobs.Progress) {
				fmt.Fprintf(cmd.OutOrStdout(), "\r%d/%d done, %d failed, %d skipped",
					p.Done, p.Total, p.Failed, p.Skipped)
			})
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("download interrupted: %w", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "completed: %d downloaded, %d failed, %d skipped\n",
				progress.Done, progress.Failed, progress.Skipped)
			return nil
		},
	}

	q.register(cmd)
	cmd.Flags().StringSliceVar(&tileServers, "tile-server", nil, "tile URL template with {x}/{y}/{z} placeholders (repeatable)")
	cmd.Flags().StringVarP(&outDir, "out", "o", defaults.DataDir, "output directory for stitched sheets")
	cmd.Flags().IntVarP(&zoom, "zoom", "z", defaults.Zoom, "tile zoom level")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaults.Concurrency, "parallel tile fetches")
	cmd.Flags().Float64Var(&ratePerSec, "rate", defaults.RatePerSecond, "tile requests per second (0 disables)")
	cmd.Flags().IntVar(&retries, "retries", defaults.Retries, "extra attempts per tile")
	cmd.Flags().DurationVar(&timeout, "timeout", defaults.RequestTimeout, "per-request timeout")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", defaults.CacheDir, "tile cache directory (empty disables)")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", defaults.CacheTTL, "tile cache entry lifetime")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-download sheets whose output exists")
	cmd.Flags().BoolVar(&allowMissing, "allow-missing", false, "stitch with blank cells where tiles fail")
	cmd.Flags().StringVar(&metadataFile, "metadata-file", "metadata.csv", "metadata file name inside the output directory")
	_ = cmd.MarkFlagRequired("tile-server")

	return cmd
}

func init() {
	rootCmd.AddCommand(newDownloadCmd())
}
