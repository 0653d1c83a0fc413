package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect overlay settings and the session",
	}
	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var checkToken bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show overlay settings and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			runCtx := commandCtx(cmd)
			overlay := set.settings.Load(runCtx)
			if jsonOutput {
				return writeJSON(cmd, overlay)
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"fontSize", strconv.Itoa(overlay.FontSize)},
				{"fontColor", overlay.FontColor},
				{"bgEnabled", strconv.FormatBool(overlay.BgEnabled)},
				{"bgColor", overlay.BgColor},
				{"bgOpacity", strconv.FormatFloat(overlay.BgOpacity, 'f', -1, 64)},
				{"outlineEnabled", strconv.FormatBool(overlay.OutlineEnabled)},
				{"outlineColor", overlay.OutlineColor},
				{"syncOffset", strconv.FormatFloat(overlay.SyncOffset, 'f', -1, 64)},
				{"animationEnabled", strconv.FormatBool(overlay.AnimationEnabled)},
				{"animationType", overlay.AnimationType},
				{"animationDuration", strconv.Itoa(overlay.AnimationDuration)},
			}
			fmt.Fprintln(out, renderTable(out, []string{"Setting", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

			rec, err := set.tokens.Current(runCtx)
			switch {
			case err != nil:
				fmt.Fprintf(out, "Session: unreadable (%v)\n", err)
			case rec == nil:
				fmt.Fprintln(out, "Session: not logged in")
			default:
				fmt.Fprintf(out, "Session: token saved %s (%s)\n", humanize.Time(time.UnixMilli(rec.Timestamp)), rec.BaseURL)
				if checkToken {
					valid, err := set.tokens.Check(runCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Token valid: %s\n", yesNo(valid))
				}
			}
			if info, savedAt, err := set.settings.UserInfo(runCtx); err == nil && info != nil {
				fmt.Fprintf(out, "Account snapshot from %s:\n", humanize.Time(savedAt))
				printUserInfo(cmd, *info)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output overlay settings as JSON")
	cmd.Flags().BoolVar(&checkToken, "check", false, "Re-validate the session token when it is past its local lifetime")
	return cmd
}
