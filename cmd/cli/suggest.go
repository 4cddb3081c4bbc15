package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedguard/internal/classifier"
	"feedguard/internal/engine"
	"feedguard/internal/fetcher"
)

// NewSuggestCmd creates the suggest command.
func NewSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest [source]",
		Short: "Suggest keywords to block from the visible posts of a page",
		Long: `Suggest filters the page with the current settings and lists the most
frequent topic words of what is still visible, one per line. Add the ones
you want gone to blocked_keywords. Words the blocklist already covers are
left out.

With --related no page is loaded: the command lists known neighbours of the
configured blocked_keywords instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if related, _ := cmd.Flags().GetBool("related"); related {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if related, _ := cmd.Flags().GetBool("related"); related {
				words := classifier.RelatedKeywords(cfg.Settings.BlockedKeywords)
				if len(words) == 0 {
					return nil
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(words, "\n"))
				return err
			}
			n, _ := cmd.Flags().GetInt("count")
			client := fetcher.NewHTTPClient(cfg.Server.FetchTimeout, cfg.Server.FetchTimeout, cfg.Server.MaxBodyBytes)
			page, err := client.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rep, err := engine.Scan(cmd.Context(), page.Doc, page.Location, engine.ScanOptions{
				Options:  engine.Options{Settings: cfg.Settings, Engine: cfg.Engine, Logger: log},
				Keywords: n,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(rep.Keywords, "\n"))
			return err
		},
	}
	cmd.Flags().IntP("count", "n", 15, "Number of keywords")
	cmd.Flags().Bool("related", false, "List neighbours of the configured blocked keywords")
	return cmd
}
