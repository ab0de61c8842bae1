package cli

import (
	"github.com/spf13/cobra"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
)

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		platform string
		since    string
		notify   bool
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Summarize new replies, mentions, follows, likes and reposts",
		Long: `Fetches notifications newer than the stored per-platform cursor (or --since),
prints a digest and advances the cursors. With --notify, a non-empty digest is
also posted to WEBHOOK_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			platforms, err := domain.ParsePlatforms(platform)
			if err != nil {
				return err
			}
			opts := engagement.MonitorOptions{Platforms: platforms, Notify: notify, DryRun: dryRun}
			if since != "" {
				if opts.Since, err = engagement.ParseSince(since); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.service.Monitor(ctx, opts)
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).monitor(rep)
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "both", "platforms to check (bsky|x|both)")
	cmd.Flags().StringVar(&since, "since", "", "look back this far instead of the stored cursor (e.g. 30m, 2h, 3d)")
	cmd.Flags().BoolVar(&notify, "notify", false, "send the digest to the webhook")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not advance cursors or send the digest")
	return cmd
}
