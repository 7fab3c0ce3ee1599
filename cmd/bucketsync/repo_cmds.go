package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/openmined/bucketsync/internal/repo"
	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var params repo.CreateParams

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty repository: bucket, registry record and local folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				r, err := a.svc.Create(cmd.Context(), &params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s at %s\n", green("Created"), cyan(r.FriendlyName), gray(r.ID), r.FolderPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&params.FolderPath, "path", "p", "", "repository folder to create")
	cmd.Flags().StringVarP(&params.FriendlyName, "name", "n", "", "friendly name")
	cmd.Flags().StringVarP(&params.Organization, "org", "o", "", "organization")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newCloneCmd() *cobra.Command {
	var into string

	cmd := &cobra.Command{
		Use:   "clone ID",
		Short: "Clone a repository from its bucket into PARENT/<friendly name>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				r, sum, err := a.svc.CloneRemote(cmd.Context(), args[0], into)
				printSummary(cmd.OutOrStdout(), "Clone", sum)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cloned into %s\n", cyan(r.FriendlyName), r.FolderPath)
				return sum.Err()
			})
		},
	}
	cmd.Flags().StringVar(&into, "into", ".", "parent directory")
	return cmd
}

func newCloneLocalCmd() *cobra.Command {
	var params repo.CreateParams

	cmd := &cobra.Command{
		Use:   "clone-local",
		Short: "Publish an existing folder as a new repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				r, sum, err := a.svc.CloneLocal(cmd.Context(), &params)
				printSummary(cmd.OutOrStdout(), "Clone", sum)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s published as %s\n", cyan(r.FriendlyName), r.ID)
				return sum.Err()
			})
		},
	}
	cmd.Flags().StringVarP(&params.FolderPath, "path", "p", "", "folder to publish")
	cmd.Flags().StringVarP(&params.FriendlyName, "name", "n", "", "friendly name")
	cmd.Flags().StringVarP(&params.Organization, "org", "o", "", "organization")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newReposCmd() *cobra.Command {
	var remote bool
	var output string

	cmd := &cobra.Command{
		Use:     "repos",
		Aliases: []string{"ls"},
		Short:   "List repositories known locally, or every registered one with --remote",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				if remote {
					items, err := a.svc.ListRemote(ctx)
					if err != nil {
						return err
					}
					if output != outputText {
						return encode(out, output, items)
					}
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tID\tORGANIZATION\tCREATED")
					for _, it := range items {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.FriendlyName, it.ID, it.Organization, it.CreatedAt.Format("2006-01-02"))
					}
					return tw.Flush()
				}

				repos, err := a.svc.ListLocal(ctx)
				if err != nil {
					return err
				}
				if output != outputText {
					return encode(out, output, repos)
				}

				activeID := ""
				if active, err := a.svc.Active(ctx); err == nil {
					activeID = active.ID
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, " \tNAME\tID\tSTATE\tPATH")
				for _, r := range repos {
					mark := " "
					if r.ID == activeID {
						mark = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, r.FriendlyName, r.ID, r.State, r.FolderPath)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list the shared registry instead of the local catalog")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use ID",
		Short: "Set the active repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.svc.SetActive(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("Active repository:"), args[0])
				return nil
			})
		},
	}
}
