package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subselect/internal/opensubtitles"
	"subselect/internal/services"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var (
		token    string
		baseURL  string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an OpenSubtitles session token",
		Long: "Validate a token with --token, or exchange --username and a password " +
			"(--password, OPENSUBTITLES_PASSWORD, or a line on stdin) for one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			client, err := set.requireClient()
			if err != nil {
				return err
			}
			if set.store == nil {
				return services.Wrap(services.ErrStorageUnavailable, "cli", "login", "cannot persist a session without the store", nil)
			}

			token = strings.TrimSpace(token)
			username = strings.TrimSpace(username)
			runCtx := commandCtx(cmd)

			var (
				saveToken string
				saveBase  string
				info      opensubtitles.UserInfo
			)
			switch {
			case token != "" && username != "":
				return errors.New("use either --token or --username, not both")
			case token != "":
				info, err = client.UserInfo(runCtx, opensubtitles.Auth{Token: token, BaseURL: baseURL})
				if err != nil {
					return fmt.Errorf("validate token: %w", err)
				}
				saveToken, saveBase = token, baseURL
			case username != "":
				if password == "" {
					password = os.Getenv("OPENSUBTITLES_PASSWORD")
				}
				if password == "" {
					password, err = readLine(cmd)
					if err != nil {
						return err
					}
				}
				result, err := client.Login(runCtx, username, password)
				if err != nil {
					return fmt.Errorf("login: %w", err)
				}
				saveToken, saveBase, info = result.Token, result.BaseURL, result.User
			default:
				return errors.New("either --token or --username is required")
			}

			if err := set.tokens.Save(runCtx, saveToken, saveBase, &info); err != nil {
				return err
			}
			if err := set.settings.SaveUserInfo(runCtx, info); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Logged in")
			printUserInfo(cmd, info)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Existing OpenSubtitles API token")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL returned with the token (vip-api.opensubtitles.com selects VIP)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "OpenSubtitles username")
	cmd.Flags().StringVar(&password, "password", "", "OpenSubtitles password")
	return cmd
}

func readLine(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printUserInfo(cmd *cobra.Command, info opensubtitles.UserInfo) {
	out := cmd.OutOrStdout()
	level := info.Level
	if level == "" {
		level = "unknown"
	}
	fmt.Fprintf(out, "Account level: %s (VIP: %s)\n", level, yesNo(info.VIP))
	if info.AllowedDownloads > 0 {
		fmt.Fprintf(out, "Downloads: %s of %s remaining\n",
			humanize.Comma(int64(info.RemainingDownloads)), humanize.Comma(int64(info.AllowedDownloads)))
	}
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			set, err := ctx.services(cmd, ctx.cliLogger())
			if err != nil {
				return err
			}
			if err := set.tokens.Clear(commandCtx(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
