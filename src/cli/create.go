package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"instance-provision/src/instance"
	"instance-provision/src/provision"
	"instance-provision/src/safety"
)

// specFlags are the instance flags shared by create and player create.
type specFlags struct {
	typeID     string
	task       string
	folder     string
	port       int
	params     []string
	worlds     string
	playerData bool
	noLogs     bool
}

func (f *specFlags) add(cmd *cobra.Command, withWorlds bool) {
	cmd.Flags().StringVar(&f.typeID, "type", "", "Instance type (required)")
	cmd.Flags().StringVar(&f.task, "task", "", "Task within the type")
	cmd.Flags().StringVar(&f.folder, "folder", "", "Folder name (default: the instance name)")
	cmd.Flags().IntVar(&f.port, "port", 0, "Port passed to the config renderer")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "Extra renderer parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&f.noLogs, "no-logs", false, "Do not link a timestamped log directory")
	if withWorlds {
		cmd.Flags().StringVar(&f.worlds, "worlds", "none", "World handling: none|copy|sync")
		cmd.Flags().BoolVar(&f.playerData, "player-data", false, "Link world/playerdata to the player template")
	}
	_ = cmd.MarkFlagRequired("type")
}

func (f *specFlags) spec(name string) (instance.Spec, error) {
	s := instance.New(name, f.typeID, f.port)
	s.Task = f.task
	s.Folder = f.folder
	copyType, err := instance.ParseCopyType(f.worlds)
	if err != nil {
		return s, err
	}
	s.Options.WorldCopy = copyType
	s.Options.SyncPlayerData = f.playerData
	s.Options.SyncLogs = !f.noLogs
	if len(f.params) > 0 {
		s.Params = make(map[string]string, len(f.params))
		for _, kv := range f.params {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return s, oops.In("cli").With("param", kv).Errorf("invalid --param %q (want key=value)", kv)
			}
			s.Params[k] = v
		}
	}
	return s, s.Validate()
}

func newCreateCmd(a *app) *cobra.Command {
	var f specFlags
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a shared instance from the template layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.spec(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				if opts := getSafetyOptions(cmd); opts.DryRun {
					planCreate(a, eng, s)
					return nil
				}
				return report(a.stdout, eng.CreateServer(ctx, s))
			})
		},
	}
	f.add(cmd, true)
	cmd.Flags().BoolVar(&a.showProgress, "progress", false, "Show copy progress on stderr")
	return cmd
}

func planCreate(a *app, eng *provision.Engine, s instance.Spec) {
	l := eng.Layout()
	dir := l.InstanceDir(s.FolderName())
	var steps []string
	for _, layer := range eng.Materializer().Layers(s.TypeID, s.Task) {
		steps = append(steps, "copy "+layer)
	}
	switch s.Options.WorldCopy {
	case instance.CopyAssets:
		steps = append(steps, "copy worlds: "+strings.Join(eng.WorldNames(s.TypeID, s.Task), ", "))
	case instance.SyncAssets:
		steps = append(steps, "link worlds: "+strings.Join(eng.WorldNames(s.TypeID, s.Task), ", "))
	}
	steps = append(steps, "render configs")
	if s.Options.SyncPlayerData {
		steps = append(steps, "link world/playerdata")
	}
	if s.Options.SyncLogs {
		steps = append(steps, "link logs")
	}
	if len(s.Params) > 0 {
		keys := make([]string, 0, len(s.Params))
		for k := range s.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		steps = append(steps, fmt.Sprintf("renderer params: %s", strings.Join(keys, ", ")))
	}
	safety.Plan(a.stdout, "create "+dir, steps...)
}
