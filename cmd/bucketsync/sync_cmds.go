package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/syncer"
	"github.com/openmined/bucketsync/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "status [ID]",
		Aliases: []string{"check"},
		Short:   "Diff a repository folder against its bucket",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				r, err := activeRepo(cmd.Context(), a, args)
				if err != nil {
					return err
				}
				result, err := a.svc.Check(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				if output != outputText {
					return encode(cmd.OutOrStdout(), output, result)
				}
				// reload for the state Check just recorded
				if r, err = a.svc.Get(cmd.Context(), r.ID); err != nil {
					return err
				}
				printDiff(cmd.OutOrStdout(), r, result)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [ID]",
		Short: "Download new and changed files from the bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				r, err := activeRepo(cmd.Context(), a, args)
				if err != nil {
					return err
				}
				sum, err := a.svc.Pull(cmd.Context(), r.ID)
				printSummary(cmd.OutOrStdout(), "Pull", sum)
				if err != nil {
					return err
				}
				return sum.Err()
			})
		},
	}
}

func newPushCmd() *cobra.Command {
	var sel syncer.Selection

	cmd := &cobra.Command{
		Use:   "push [ID]",
		Short: "Upload selected local changes to the bucket",
		Long: `Push applies part of a fresh diff to the bucket. Select entries with
--new, --modified and --deleted (exact paths or ** globs), or everything with --all.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sel.IsEmpty() {
				return fmt.Errorf("nothing selected: pass --new, --modified, --deleted or --all")
			}
			return withApp(cmd.Context(), func(a *app) error {
				r, err := activeRepo(cmd.Context(), a, args)
				if err != nil {
					return err
				}
				sum, err := a.svc.Push(cmd.Context(), r.ID, sel)
				printSummary(cmd.OutOrStdout(), "Push", sum)
				if err != nil {
					return err
				}
				return sum.Err()
			})
		},
	}
	cmd.Flags().StringArrayVar(&sel.New, "new", nil, "new entry or glob to upload (repeatable)")
	cmd.Flags().StringArrayVar(&sel.Modified, "modified", nil, "modified entry or glob to upload (repeatable)")
	cmd.Flags().StringArrayVar(&sel.Deleted, "deleted", nil, "deleted entry or glob to remove from the bucket (repeatable)")
	cmd.Flags().BoolVar(&sel.All, "all", false, "push every change")
	return cmd
}

func newTreeCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "tree [ID]",
		Short: "Print the local or remote hierarchy of a repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				r, err := activeRepo(cmd.Context(), a, args)
				if err != nil {
					return err
				}
				root, err := a.svc.Tree(cmd.Context(), r.ID, remote)
				if err != nil {
					return err
				}
				printTree(cmd.OutOrStdout(), root)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "show the bucket instead of the folder")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch [ID]",
		Short: "Re-check a repository whenever its folder changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == "" {
				metricsAddr = cfg.MetricsAddr
			}
			return withApp(cmd.Context(), func(a *app) error {
				r, err := activeRepo(cmd.Context(), a, args)
				if err != nil {
					return err
				}

				ignore := hierarchy.LoadIgnoreList(r.FolderPath)
				check := func(ctx context.Context) error {
					result, err := a.svc.Check(ctx, r.ID)
					if err != nil {
						return err
					}
					if result.IsEmpty() {
						slog.Info("repository in sync", "name", r.FriendlyName)
						return nil
					}
					slog.Info("repository diverged", "name", r.FriendlyName,
						"new", len(result.NewFiles),
						"modified", len(result.ModifiedFiles),
						"deleted", len(result.DeletedFiles),
					)
					return nil
				}
				w := watch.New(r.FolderPath, check, watch.WithFilter(func(rel string) bool {
					return ignore.ShouldIgnore(rel, false)
				}))

				g, ctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error { return w.Run(ctx) })
				if metricsAddr != "" {
					g.Go(func() error { return a.metrics.Serve(ctx, metricsAddr) })
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
