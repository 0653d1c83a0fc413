package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subselect/internal/opensubtitles"
	"subselect/internal/subtitles"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		outputDir string
		token     string
		baseURL   string
		title     string
		language  string
		toStdout  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <file-id>",
		Short: "Load a subtitle through the cache and save it as .srt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			logger := ctx.cliLogger()
			var opts []subtitles.ServiceOption
			if t := strings.TrimSpace(token); t != "" {
				opts = append(opts, subtitles.WithAuth(opensubtitles.Auth{Token: t, BaseURL: baseURL}))
			}
			set, err := ctx.services(cmd, logger, opts...)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			out := cmd.OutOrStdout()

			if toStdout {
				result, err := set.subtitles.LoadWithMeta(commandCtx(cmd), id, subtitles.Meta{Title: title, Language: language})
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, result.Record.Content)
				return err
			}

			meta := subtitles.Meta{Title: title, Language: language}
			path, result, err := set.subtitles.SaveWithMeta(commandCtx(cmd), id, outputDir, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s (%s, from %s)\n", path, humanize.Bytes(uint64(len(result.Record.Content))), result.Source)
			if result.Source == subtitles.SourceRemote && result.Remaining > 0 {
				fmt.Fprintf(out, "Downloads remaining today: %d\n", result.Remaining)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write the .srt file into")
	cmd.Flags().StringVar(&token, "token", "", "Use this OpenSubtitles token instead of the stored session")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Session base URL for --token (vip-api.opensubtitles.com selects VIP)")
	cmd.Flags().StringVar(&title, "title", "", "Title recorded in the cache on download")
	cmd.Flags().StringVar(&language, "language", "", "Language code recorded in the cache on download")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the subtitle instead of writing a file")
	return cmd
}
