package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"instance-provision/src/provision"
	"instance-provision/src/resolve"
)

func newResolveCmd(a *app) *cobra.Command {
	var typeID, task, kind string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the template directory a type and task resolve to",
		Long: "Kinds: servers (the task layer of new instances), worlds (the world\n" +
			"layer), players (the player data layer) and player-default (the layer\n" +
			"new player templates are initialized from).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				l := eng.Layout()
				var path string
				switch kind {
				case "servers", "":
					path = eng.ResolveTemplate(typeID, task)
				case "worlds":
					path = resolve.AssetLayer(l.WorldTemplates(), typeID, task)
				case "players":
					path = resolve.Template(l.PlayerTemplates(), typeID, task, l.Names.Default)
				case "player-default":
					path, _ = resolve.Default(l.ServerTemplates(), typeID, task, l.Names.PlayerDefault)
				default:
					return fmt.Errorf("unsupported --kind: %s", kind)
				}
				fmt.Fprintln(a.stdout, path)
				return nil
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, false)
	cmd.Flags().StringVar(&kind, "kind", "servers", "Template kind: servers|worlds|players|player-default")
	return cmd
}
