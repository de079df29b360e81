package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/apicache/cache"
	"github.com/jonwraymond/apicache/config"
	"github.com/jonwraymond/apicache/observe"
)

var (
	fetchUpstream string
	fetchRepeat   int
	fetchParams   []string

	fetchCmd = &cobra.Command{
		Use:   "fetch PATH...",
		Short: "Fetch API paths concurrently through one cache and report what reached the upstream",
		Example: `  apicache fetch --upstream https://oj.example.com /api/website /api/problem --repeat 5
  apicache fetch /api/problem --param page=2 --param limit=20`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFetch,
	}
)

func init() {
	fetchCmd.Flags().StringVar(&fetchUpstream, "upstream", "", "upstream API base URL (overrides server.upstream)")
	fetchCmd.Flags().IntVarP(&fetchRepeat, "repeat", "n", 1, "concurrent requests per path")
	fetchCmd.Flags().StringArrayVarP(&fetchParams, "param", "p", nil, "query param as key=value (repeatable)")
}

type fetchRow struct {
	path     string
	size     int
	duration time.Duration
	err      error
}

func runFetch(cmd *cobra.Command, paths []string) error {
	upstream := firstNonEmpty(fetchUpstream, cfg.Server.Upstream)
	if upstream == "" {
		return errors.New("fetch: an upstream is required (--upstream or server.upstream)")
	}
	if fetchRepeat < 1 {
		return errors.New("fetch: --repeat must be at least 1")
	}
	params, err := parseParams(fetchParams)
	if err != nil {
		return err
	}

	policy, err := cfg.Cache.Policy()
	if err != nil {
		return err
	}
	ht, err := NewHTTPTransport(upstream, cfg.Server.UpstreamTimeout)
	if err != nil {
		return err
	}

	logger := observe.NewLoggerWithWriter(cfg.Observe.Logging.Level, cfg.Observe.Logging.Format, cmd.ErrOrStderr())
	rc, err := cache.New(cache.Config{
		Policy:          policy,
		Recorder:        observe.NewRecorder(nil, logger),
		JanitorInterval: -1,
	})
	if err != nil {
		return err
	}
	defer rc.Close()

	var upstreamCalls atomic.Int64
	transport := cfg.Server.Guard(config.GuardHooks{Retryable: upstreamRetryable}).Wrap(func(ctx context.Context, method, path string, p cache.Params) ([]byte, error) {
		upstreamCalls.Add(1)
		return ht.Do(ctx, method, path, p)
	})

	rows := fetchAll(cmd.Context(), rc, transport, paths, params, fetchRepeat, cfg.Cache.WarmLimit)

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tTIME\tRESULT")
	failed := 0
	for _, row := range rows {
		result := "ok"
		if row.err != nil {
			result = row.err.Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.path, humanize.Bytes(uint64(row.size)), row.duration.Round(time.Millisecond), result)
	}
	_ = tw.Flush()

	st := rc.Stats(cmd.Context())
	fmt.Fprintf(out, "\n%s requests, %s upstream calls, %s entries cached\n",
		humanize.Comma(int64(len(rows))),
		humanize.Comma(upstreamCalls.Load()),
		humanize.Comma(int64(st.Valid)),
	)

	if failed > 0 {
		return fmt.Errorf("fetch: %d of %d requests failed", failed, len(rows))
	}
	return nil
}

// fetchAll issues repeat GETs for every path at once, at most limit in
// flight (limit<=0 is unbounded). Rows keep argument order.
func fetchAll(ctx context.Context, rc *cache.RequestCache, transport cache.Transport, paths []string, params cache.Params, repeat, limit int) []fetchRow {
	rows := make([]fetchRow, 0, len(paths)*repeat)
	for _, p := range paths {
		for range repeat {
			rows = append(rows, fetchRow{path: p})
		}
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range rows {
		g.Go(func() error {
			start := time.Now()
			body, err := rc.Fetch(ctx, "GET", rows[i].path, params, transport)
			rows[i].size, rows[i].duration, rows[i].err = len(body), time.Since(start), err
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func parseParams(pairs []string) (cache.Params, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(cache.Params, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("fetch: --param %q must be key=value", pair)
		}
		if prev, exists := params[k]; exists {
			if list, isList := prev.([]any); isList {
				params[k] = append(list, v)
			} else {
				params[k] = []any{prev, v}
			}
			continue
		}
		params[k] = v
	}
	return params, nil
}
