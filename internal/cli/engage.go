package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
)

// runFlags are shared by the engage and amplify commands.
type runFlags struct {
	target   int
	platform string
	dryRun   bool
	force    bool
	window   time.Duration
}

func (f *runFlags) register(cmd *cobra.Command, window time.Duration) {
	cmd.Flags().IntVar(&f.target, "target", -1, "roster index (default: chosen by hour of day)")
	cmd.Flags().StringVar(&f.platform, "platform", "both", "platforms to process (bsky|x|both)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "log intended actions without performing or saving them")
	cmd.Flags().BoolVar(&f.force, "force", false, "ignore previous engagement records")
	cmd.Flags().DurationVar(&f.window, "window", window, "only consider posts newer than this")
}

func (f *runFlags) options() (engagement.RunOptions, error) {
	platforms, err := domain.ParsePlatforms(f.platform)
	if err != nil {
		return engagement.RunOptions{}, err
	}
	return engagement.RunOptions{
		Target:    f.target,
		Platforms: platforms,
		DryRun:    f.dryRun,
		Force:     f.force,
		Window:    f.window,
	}, nil
}

type flowFunc func(svc *engagement.Service, ctx context.Context, opts engagement.RunOptions) (*engagement.Report, error)

// NewEngageCommand creates the engage command.
func NewEngageCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "engage",
		Short: "Follow, like, repost and reply to the target's fresh posts",
		Long: `Selects one target from the roster, follows it once per platform, likes every
fresh unliked post, reposts popular ones and replies to at most one post per
platform whose text matches the target's keywords.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, rootOpts, flags, (*engagement.Service).Engage)
		},
	}
	flags.register(cmd, engagement.DefaultEngageWindow)
	return cmd
}

// NewAmplifyCommand creates the amplify command.
func NewAmplifyCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "amplify",
		Short: "Post a summary of the target's most recent newsworthy post",
		Long: `Collects the target's newsworthy posts across platforms and posts a credited
summary of the most recent one to every enabled platform. Older candidates are
left for the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, rootOpts, flags, (*engagement.Service).Amplify)
		},
	}
	flags.register(cmd, engagement.DefaultAmplifyWindow)
	return cmd
}

func runFlow(cmd *cobra.Command, rootOpts *RootOptions, flags *runFlags, flow flowFunc) error {
	opts, err := flags.options()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := flow(a.service, ctx, opts)
	if rep != nil {
		if outErr := newOutput(rootOpts, cmd.OutOrStdout()).report(rep); outErr != nil && err == nil {
			err = outErr
		}
	}
	return err
}
