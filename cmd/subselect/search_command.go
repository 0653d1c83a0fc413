package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subselect/internal/opensubtitles"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		languages  []string
		imdbID     string
		season     int
		episode    int
		year       string
		page       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search OpenSubtitles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			client, err := set.requireClient()
			if err != nil {
				return err
			}

			var auth opensubtitles.Auth
			if rec, err := set.tokens.Current(commandCtx(cmd)); err == nil && rec != nil {
				auth = rec.Auth()
			}
			if len(languages) == 0 {
				languages = cfg.OpenSubtitles.Languages
			}
			resp, err := client.Search(commandCtx(cmd), auth, opensubtitles.SearchRequest{
				Query:     strings.Join(args, " "),
				IMDBID:    imdbID,
				Languages: languages,
				Season:    season,
				Episode:   episode,
				Year:      year,
				Page:      page,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if len(resp.Subtitles) == 0 {
				fmt.Fprintln(out, "No subtitles found")
				return nil
			}
			rows := make([][]string, 0, len(resp.Subtitles))
			for _, sub := range resp.Subtitles {
				title := sub.FeatureTitle
				if sub.FeatureYear > 0 {
					title = fmt.Sprintf("%s (%d)", title, sub.FeatureYear)
				}
				flags := ""
				if sub.HearingImpaired {
					flags += "HI "
				}
				if sub.AITranslated {
					flags += "AI"
				}
				rows = append(rows, []string{
					strconv.FormatInt(sub.FileID, 10),
					sub.Language,
					title,
					sub.Release,
					humanize.Comma(int64(sub.Downloads)),
					strings.TrimSpace(flags),
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"File ID", "Lang", "Title", "Release", "Downloads", "Flags"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Page %d of %d (%s results). Fetch with: subselect fetch <file-id>\n",
				resp.Page, resp.TotalPages, humanize.Comma(int64(resp.Total)))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&languages, "language", "l", nil, "Language code filter (repeatable; defaults to opensubtitles.languages)")
	cmd.Flags().StringVar(&imdbID, "imdb", "", "IMDb id filter")
	cmd.Flags().IntVar(&season, "season", 0, "Season number")
	cmd.Flags().IntVar(&episode, "episode", 0, "Episode number")
	cmd.Flags().StringVar(&year, "year", "", "Release year")
	cmd.Flags().IntVar(&page, "page", 0, "Result page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
