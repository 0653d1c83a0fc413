package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"subselect/internal/api"
	"subselect/internal/subtitlecache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the subtitle cache",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheShowCommand(ctx))
	cacheCmd.AddCommand(newCacheStatusCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached subtitles, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			all := set.cache.List(commandCtx(cmd))
			records := filterRecords(all, filter)

			if jsonOutput {
				items := make([]api.CacheEntry, 0, len(records))
				for _, rec := range records {
					items = append(items, api.FromCacheRecord(rec))
				}
				return writeJSON(cmd, api.CacheListResponse{Items: items, Capacity: set.cache.Capacity(), Degraded: set.cache.Degraded()})
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				if strings.TrimSpace(filter) != "" {
					fmt.Fprintf(out, "No cached subtitles match %q\n", filter)
				} else {
					fmt.Fprintln(out, "Cache is empty")
				}
				return nil
			}
			rows := make([][]string, 0, len(records))
			for i, rec := range records {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					rec.ID,
					displayTitle(rec),
					rec.Language,
					humanize.Bytes(uint64(len(rec.Content))),
					humanize.Time(time.UnixMilli(rec.Timestamp)),
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"#", "ID", "Title", "Lang", "Size", "Cached"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d of %d slots used\n", len(all), set.cache.Capacity())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Fuzzy filter on title or file name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// filterRecords keeps records whose title or file name fuzzily contains query.
func filterRecords(records []subtitlecache.CacheRecord, query string) []subtitlecache.CacheRecord {
	query = strings.TrimSpace(query)
	if query == "" {
		return records
	}
	out := make([]subtitlecache.CacheRecord, 0, len(records))
	for _, rec := range records {
		if fuzzy.MatchNormalizedFold(query, rec.Title) || fuzzy.MatchNormalizedFold(query, rec.FileName) || rec.ID == query {
			out = append(out, rec)
		}
	}
	return out
}

func displayTitle(rec subtitlecache.CacheRecord) string {
	if t := strings.TrimSpace(rec.Title); t != "" {
		return t
	}
	return rec.FileName
}

func newCacheShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var contentOnly bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a cached subtitle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			rec, err := set.cache.Lookup(commandCtx(cmd), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("subtitle %s is not cached", strings.TrimSpace(args[0]))
			}
			if jsonOutput {
				return writeJSON(cmd, rec)
			}
			out := cmd.OutOrStdout()
			if contentOnly {
				_, err := fmt.Fprint(out, rec.Content)
				return err
			}
			fmt.Fprintf(out, "ID: %s\n", rec.ID)
			fmt.Fprintf(out, "Title: %s\n", displayTitle(*rec))
			fmt.Fprintf(out, "File: %s\n", rec.FileName)
			if rec.Language != "" {
				fmt.Fprintf(out, "Language: %s\n", rec.Language)
			}
			cachedAt := time.UnixMilli(rec.Timestamp)
			fmt.Fprintf(out, "Cached: %s (%s)\n", cachedAt.Local().Format(time.DateTime), humanize.Time(cachedAt))
			fmt.Fprintf(out, "Size: %s\n", humanize.Bytes(uint64(len(rec.Content))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&contentOnly, "content", false, "Print only the subtitle content")
	return cmd
}

func newCacheStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Report whether a subtitle is cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			cached, err := set.subtitles.Status(commandCtx(cmd), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.CacheStatusResponse{ID: id, Cached: cached})
			}
			state := "not cached"
			if cached {
				state = "cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached subtitle",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			removed := set.cache.Clear(commandCtx(cmd))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached %s\n", removed, plural(removed, "subtitle", "subtitles"))
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
