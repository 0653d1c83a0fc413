package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"subselect/internal/daemon"
	"subselect/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for the userscript",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if b := strings.TrimSpace(bind); b != "" {
				cfg.Paths.APIBind = b
			}
			logger, err := ctx.daemonLogger()
			if err != nil {
				return err
			}
			set, err := ctx.services(cmd, logger)
			if err != nil {
				return err
			}
			if set.client == nil {
				logging.WarnWithContext(logger, "opensubtitles api key not configured", "api_key_missing",
					logging.String(logging.FieldErrorHint, "set opensubtitles.api_key or OPENSUBTITLES_API_KEY"),
					logging.String(logging.FieldImpact, "cache misses cannot be fetched"),
				)
			}

			d, err := daemon.New(cfg, daemon.Deps{
				Store:     set.store,
				Subtitles: set.subtitles,
				Tokens:    set.tokens,
				Settings:  set.settings,
				Languages: set.languages,
				Hub:       set.hub,
			}, logger)
			if err != nil {
				return err
			}
			runCtx := commandCtx(cmd)
			if err := d.Run(runCtx); err != nil && !errors.Is(err, runCtx.Err()) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind (host:port)")
	return cmd
}
