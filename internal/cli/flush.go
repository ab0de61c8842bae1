package cli

import (
	"github.com/spf13/cobra"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
)

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		platform string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Retry writes that were rate limited on earlier runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			platforms, err := domain.ParsePlatforms(platform)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.service.Flush(ctx, engagement.FlushOptions{DryRun: dryRun, Platforms: platforms})
			if outErr := newOutput(rootOpts, cmd.OutOrStdout()).flush(rep); outErr != nil && err == nil {
				err = outErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "both", "platforms to flush (bsky|x|both)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list due actions without sending them")
	return cmd
}
