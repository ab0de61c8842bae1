package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
)

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		opts     engagement.PublishOptions
		platform string
	)
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish the same post on every enabled platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Text == "" {
				return errors.New("--text is required")
			}
			platforms, err := domain.ParsePlatforms(platform)
			if err != nil {
				return err
			}
			opts.Platforms = platforms

			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.service.Publish(ctx, opts)
			if outErr := newOutput(rootOpts, cmd.OutOrStdout()).publish(results); outErr != nil && err == nil {
				err = outErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.Text, "text", "t", "", "post text (truncated to each platform's limit)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "link appended to the text and attached as a card where supported")
	cmd.Flags().StringVar(&platform, "platform", "both", "platforms to post on (bsky|x|both)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log the post without sending it")
	return cmd
}
