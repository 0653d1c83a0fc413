package main

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"subselect/internal/opensubtitles"
)

func newLanguagesCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	var filter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List the OpenSubtitles language catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			var langs []opensubtitles.Language
			if refresh {
				langs, err = set.languages.Refresh(commandCtx(cmd))
			} else {
				langs, err = set.languages.Get(commandCtx(cmd))
			}
			if err != nil {
				return err
			}
			if q := strings.TrimSpace(filter); q != "" {
				filtered := langs[:0:0]
				for _, lang := range langs {
					if strings.EqualFold(lang.Code, q) || fuzzy.MatchNormalizedFold(q, lang.Name) {
						filtered = append(filtered, lang)
					}
				}
				langs = filtered
			}
			if jsonOutput {
				return writeJSON(cmd, langs)
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(langs))
			for _, lang := range langs {
				rows = append(rows, []string{lang.Code, lang.Name})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Code", "Language"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the catalogue even when the cached copy is fresh")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter by code or fuzzy name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
