package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	configResolve string

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective cache policy",
		Example: `  apicache config
  apicache config --resolve /api/contest_rank`,
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
)

func init() {
	configCmd.Flags().StringVar(&configResolve, "resolve", "", "show cacheability and TTL for one GET path")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	policy, err := cfg.Cache.Policy()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if configResolve != "" {
		if !policy.IsCacheable("GET", configResolve) {
			fmt.Fprintf(out, "GET %s: not cached\n", configResolve)
			return nil
		}
		fmt.Fprintf(out, "GET %s: cached for %s\n", configResolve, policy.ResolveTTL(configResolve))
		return nil
	}

	if !policy.ShouldCache() {
		fmt.Fprintln(out, "caching disabled")
		return nil
	}

	fmt.Fprintf(out, "methods:     %v\n", policy.Methods)
	fmt.Fprintf(out, "default ttl: %s\n", policy.DefaultTTL)
	fmt.Fprintf(out, "max ttl:     %s\n", policy.MaxTTL)
	fmt.Fprintf(out, "janitor:     %s\n\n", janitorLabel())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRULE\tTTL")
	for i, r := range policy.Rules {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, r.Pattern, policy.EffectiveTTL(r.TTL))
	}
	_ = tw.Flush()

	if len(policy.Denylist) > 0 {
		fmt.Fprintln(out, "\nnever cached:")
		for _, p := range policy.Denylist {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
	return nil
}

func janitorLabel() string {
	switch {
	case cfg.Cache.JanitorInterval < 0:
		return "disabled"
	case cfg.Cache.JanitorInterval == 0:
		return "default interval"
	default:
		return "every " + cfg.Cache.JanitorInterval.String()
	}
}
