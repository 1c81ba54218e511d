package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shortlink/engine"
	"shortlink/ratelimit"
)

var shortenCmd = &cobra.Command{
	Use:   "shorten",
	Short: "Create (or look up) the short code for a URL.",
	Long: `Shortens a URL against the configured store and prints its code.

Example:
  shortlink shorten --url="https://www.google.com/search?q=go+lang"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		longURL, _ := cmd.Flags().GetString("url")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		client := engine.Client{Identity: ratelimit.Identity{Key: "cli", Class: ratelimit.Authenticated}}
		rec, err := a.engine.Shorten(cmd.Context(), longURL, client)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Code: %s\n", rec.Code)
		fmt.Fprintf(cmd.OutOrStdout(), "URL: %s\n", rec.OriginalURL)
		fmt.Fprintf(cmd.OutOrStdout(), "Short URL: %s/%s\n", strings.TrimRight(cfg.BaseHost, "/"), rec.Code)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show click statistics for a short code.",
	Long: `Prints the URL behind a code, its total clicks and the per-day breakdown.

Example:
  shortlink stats --code abc123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		st, err := a.engine.Stats(ctx, code)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Code: %s\n", st.Record.Code)
		fmt.Fprintf(out, "URL: %s\n", st.Record.OriginalURL)
		fmt.Fprintf(out, "Created: %s\n", st.Record.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Total clicks: %d\n", st.Record.ClickCount)
		for _, d := range st.Daily {
			fmt.Fprintf(out, "  %s  %d\n", d.Day.Format("2006-01-02"), d.Clicks)
		}
		return nil
	},
}

func init() {
	shortenCmd.Flags().StringP("url", "u", "", "long URL to shorten")
	_ = shortenCmd.MarkFlagRequired("url")

	statsCmd.Flags().StringP("code", "c", "", "short code to report on")
	_ = statsCmd.MarkFlagRequired("code")
}
