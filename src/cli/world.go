package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"instance-provision/src/provision"
	"instance-provision/src/safety"
)

func newWorldCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "List, link and export shared worlds",
	}
	cmd.AddCommand(newWorldListCmd(a), newWorldLinkCmd(a), newWorldExportCmd(a))
	return cmd
}

func newWorldListCmd(a *app) *cobra.Command {
	var typeID, task string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the worlds available to a type and task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				for _, name := range eng.WorldNames(typeID, task) {
					fmt.Fprintln(a.stdout, name)
				}
				return nil
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, false)
	return cmd
}

func newWorldLinkCmd(a *app) *cobra.Command {
	var typeID, task string
	cmd := &cobra.Command{
		Use:   "link <instance-folder> <world>",
		Short: "Replace an instance's world with a link to the shared template",
		Long:  "Anything at servers/<instance-folder>/<world> is deleted before linking, including instance-local world data.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, world := args[0], args[1]
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				dest := filepath.Join(eng.Layout().InstanceDir(folder), world)
				src := eng.Linker().AssetSource(world, typeID, task)
				opts := getSafetyOptions(cmd)
				if opts.DryRun {
					safety.Plan(a.stdout, "link world "+world, "delete "+dest, "link "+dest+" -> "+src)
					return nil
				}
				ok, err := safety.Confirm(opts, cmd.InOrStdin(), a.stdout, fmt.Sprintf("Replace %s with a link to %s?", dest, src))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.stdout, "aborted")
					return nil
				}
				return report(a.stdout, eng.SyncWorld(ctx, folder, world, typeID, task))
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, false)
	return cmd
}

func newWorldExportCmd(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "export <instance-folder> <world>",
		Short: "Move an instance-local world into the world templates and link it back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, world := args[0], args[1]
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				src := filepath.Join(eng.Layout().InstanceDir(folder), world)
				dest := filepath.Join(eng.Layout().WorldTemplates(), to, world)
				opts := getSafetyOptions(cmd)
				if opts.DryRun {
					safety.Plan(a.stdout, "export world "+world, "copy "+src+" -> "+dest, "delete "+src, "link "+src+" -> "+dest)
					return nil
				}
				ok, err := safety.Confirm(opts, cmd.InOrStdin(), a.stdout, fmt.Sprintf("Export %s to %s?", src, dest))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.stdout, "aborted")
					return nil
				}
				return report(a.stdout, eng.ExportWorld(ctx, folder, world, to))
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Destination below templates/worlds, e.g. survival/task1 (required)")
	_ = cmd.MarkFlagRequired("to")
	cmd.Flags().BoolVar(&a.showProgress, "progress", false, "Show copy progress on stderr")
	return cmd
}
