package cli

import (
	"github.com/spf13/cobra"

	"github.com/sakif/runquest/internal/achievement"
)

// ownerFlag registers the required --owner flag. The owner id is the
// Strava athlete id shown by GET /api/me.
func ownerFlag(cmd *cobra.Command, owner *int64) {
	cmd.Flags().Int64Var(owner, "owner", 0, "owner (Strava athlete) id (required)")
	_ = cmd.MarkFlagRequired("owner")
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record newly unlocked achievements for an owner",
		Long: `Fetch the owner's Strava totals and record every achievement they
now meet. Running it again with unchanged totals records nothing.

Example:
  runquest sync --owner 12345
  runquest sync --owner 12345 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := withSyncTimeout(cmd.Context(), a)
			defer cancel()

			res, err := a.Sync.Sync(ctx, owner)
			if err != nil {
				return err
			}
			return rootOpts.printer(cmd).SyncResult(res)
		},
	}
	ownerFlag(cmd, &owner)
	return cmd
}

// NewAchievementsCommand creates the achievements command.
func NewAchievementsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		owner  int64
		sorted bool
	)

	cmd := &cobra.Command{
		Use:   "achievements",
		Short: "Show every achievement with the owner's progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Achievements.List(cmd.Context(), owner, sorted)
			if err != nil {
				return err
			}
			return rootOpts.printer(cmd).Achievements(view)
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().BoolVar(&sorted, "sort", false, "unlocked first, then closest to unlocking")
	return cmd
}

// NewActivitiesCommand creates the activities command group.
func NewActivitiesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "Manage the local activity mirror",
	}
	cmd.AddCommand(newActivitiesSyncCommand(rootOpts))
	cmd.AddCommand(newActivitiesListCommand(rootOpts))
	return cmd
}

func newActivitiesSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull the owner's most recent activities from Strava",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := withSyncTimeout(cmd.Context(), a)
			defer cancel()

			res, err := a.Activities.Sync(ctx, owner)
			if err != nil {
				return err
			}
			return rootOpts.printer(cmd).ActivitySync(res)
		},
	}
	ownerFlag(cmd, &owner)
	return cmd
}

func newActivitiesListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		owner         int64
		page, perPage int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirrored activities, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Activities.List(cmd.Context(), owner, page, perPage)
			if err != nil {
				return err
			}
			return rootOpts.printer(cmd).Activities(res)
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 30, "activities per page (max 200)")
	return cmd
}

// NewCatalogCommand creates the catalog command. It needs no config or
// database.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List every achievement definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.printer(cmd).Catalog(achievement.Default().Definitions())
		},
	}
}
