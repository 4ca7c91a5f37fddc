package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/app"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/query"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/logger"
)

type crawlOptions struct {
	depth      int
	percentile float64
	ignore     []string
	indent     bool
}

func newCrawlCommand(root *rootOptions) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl <article>",
		Short: "Crawl an article and print its word frequencies",
		Long: `Crawl an article and the articles it links to, up to --depth hops.

Without --percentile the full mapping is printed with each word's share of
the total. With --percentile the ignore list is removed first and only the
most frequent words below the percentile are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger.Setup(root.logLevel, "text")

			pipeline := app.Build(cfg, nil, nil)
			article := strings.TrimSpace(args[0])

			var result any
			if cmd.Flags().Changed("percentile") || len(opts.ignore) > 0 {
				percentile := opts.percentile
				if !cmd.Flags().Changed("percentile") {
					percentile = 100
				}
				result, err = pipeline.Queries.FilteredQuery(cmd.Context(), query.FilteredRequest{
					Article:    article,
					Depth:      opts.depth,
					IgnoreList: opts.ignore,
					Percentile: percentile,
				})
			} else {
				result, err = pipeline.Queries.ReadQuery(cmd.Context(), article, opts.depth)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if opts.indent {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", 0, "number of link hops to follow from the article")
	cmd.Flags().Float64VarP(&opts.percentile, "percentile", "p", 0, "keep the most frequent words below this percentile (0-100)")
	cmd.Flags().StringSliceVarP(&opts.ignore, "ignore", "i", nil, "comma-separated words to drop before filtering")
	cmd.Flags().BoolVar(&opts.indent, "indent", isTerminal(os.Stdout), "pretty-print the JSON output")
	return cmd
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
