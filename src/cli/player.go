package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"instance-provision/src/provision"
)

// ownerFlags select the owner folder of a player template.
type ownerFlags struct {
	owner  string
	public bool
}

func (o *ownerFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.owner, "owner", "", "Owner identity (UUID)")
	cmd.Flags().BoolVar(&o.public, "public", false, "Use the public template folder instead of an owner")
	cmd.MarkFlagsMutuallyExclusive("owner", "public")
	cmd.MarkFlagsOneRequired("owner", "public")
}

func (o *ownerFlags) id() (uuid.UUID, error) {
	return parseIdentity("--owner", o.owner)
}

func parseIdentity(flag, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, oops.In("cli").With(flag, s).Wrapf(err, "invalid %s identity %q", flag, s)
	}
	return id, nil
}

func newPlayerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Manage player-owned instance templates",
	}
	cmd.AddCommand(newPlayerCreateCmd(a))
	cmd.AddCommand(newPlayerInitCmd(a))
	cmd.AddCommand(newPlayerListCmd(a))
	cmd.AddCommand(newPlayerMembersCmd(a))
	return cmd
}

func newPlayerCreateCmd(a *app) *cobra.Command {
	var f specFlags
	var o ownerFlags
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an instance from a player template",
		Long: "Create servers/<name> by linking the entries of the player template\n" +
			"templates/servers/<type>/<task>/<owner>/<folder> and merging the shared layers on top.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.spec(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				if o.public {
					return report(a.stdout, eng.CreatePublicPlayerServer(ctx, s))
				}
				owner, err := o.id()
				if err != nil {
					return err
				}
				return report(a.stdout, eng.CreatePlayerServer(ctx, owner, s))
			})
		},
	}
	f.add(cmd, false)
	o.add(cmd)
	cmd.Flags().BoolVar(&a.showProgress, "progress", false, "Show copy progress on stderr")
	return cmd
}

func newPlayerInitCmd(a *app) *cobra.Command {
	var typeID, task string
	var o ownerFlags
	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Initialize a new player template from the player default layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				if o.public {
					return report(a.stdout, eng.InitPublicPlayerServer(ctx, typeID, task, args[0]))
				}
				owner, err := o.id()
				if err != nil {
					return err
				}
				return report(a.stdout, eng.InitPlayerServer(ctx, owner, typeID, task, args[0]))
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, true)
	o.add(cmd)
	return cmd
}

func newPlayerListCmd(a *app) *cobra.Command {
	var typeID, task, owner, member, output string
	var public bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List player templates of a type and task",
		Long: "Without a filter every owner's templates are listed. --owner, --member\n" +
			"and --public narrow the listing.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				var rows []templateRow
				switch {
				case public:
					for _, n := range eng.PublicPlayerServerNames(typeID, task) {
						rows = append(rows, templateRow{Owner: eng.Layout().Names.Public, Name: n})
					}
				case owner != "":
					id, err := parseIdentity("--owner", owner)
					if err != nil {
						return err
					}
					for _, n := range eng.OwnerServerNames(id, typeID, task) {
						rows = append(rows, templateRow{Owner: id.String(), Name: n})
					}
				case member != "":
					id, err := parseIdentity("--member", member)
					if err != nil {
						return err
					}
					rows = flatten(eng.MemberServerNames(id, typeID, task))
				default:
					rows = flatten(eng.AllPlayerServerNames(typeID, task))
				}
				return writeTemplates(a.stdout, output, rows)
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, true)
	cmd.Flags().StringVar(&owner, "owner", "", "Only templates of this owner")
	cmd.Flags().StringVar(&member, "member", "", "Only templates this identity is a member of")
	cmd.Flags().BoolVar(&public, "public", false, "Only public templates")
	cmd.MarkFlagsMutuallyExclusive("owner", "member", "public")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

type templateRow struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func flatten(byOwner map[uuid.UUID][]string) []templateRow {
	var rows []templateRow
	for owner, names := range byOwner {
		for _, n := range names {
			rows = append(rows, templateRow{Owner: owner.String(), Name: n})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Owner != rows[j].Owner {
			return rows[i].Owner < rows[j].Owner
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

func writeTemplates(w io.Writer, output string, rows []templateRow) error {
	switch output {
	case "json":
		if rows == nil {
			rows = []templateRow{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "OWNER\tNAME")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\n", r.Owner, r.Name)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported --output: %s", output)
	}
}

func newPlayerMembersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Show or replace the members of a player template",
	}
	cmd.AddCommand(newMembersGetCmd(a), newMembersSetCmd(a))
	return cmd
}

func newMembersGetCmd(a *app) *cobra.Command {
	var typeID, task, owner string
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print the owner and members of a player template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentity("--owner", owner)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				if recorded, ok := eng.PlayerServerOwner(id, typeID, task, args[0]); ok {
					fmt.Fprintf(a.stdout, "owner %s\n", recorded)
				}
				for _, m := range eng.PlayerServerMembers(id, typeID, task, args[0]) {
					fmt.Fprintf(a.stdout, "member %s\n", m)
				}
				return nil
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, true)
	cmd.Flags().StringVar(&owner, "owner", "", "Owner identity (UUID)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newMembersSetCmd(a *app) *cobra.Command {
	var typeID, task, owner string
	var members []string
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Replace the members of a player template",
		Long:  "Replace the member list. Passing no --member clears it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentity("--owner", owner)
			if err != nil {
				return err
			}
			ids := make([]uuid.UUID, 0, len(members))
			for _, m := range members {
				mid, err := parseIdentity("--member", m)
				if err != nil {
					return err
				}
				ids = append(ids, mid)
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				if !eng.SetPlayerServerMembers(ctx, id, typeID, task, args[0], ids) {
					return oops.In("cli").With("template", args[0]).Errorf("failed to write members of %s", args[0])
				}
				fmt.Fprintf(a.stdout, "%d members\n", len(eng.PlayerServerMembers(id, typeID, task, args[0])))
				return nil
			})
		},
	}
	addTypeTaskFlags(cmd, &typeID, &task, true)
	cmd.Flags().StringVar(&owner, "owner", "", "Owner identity (UUID)")
	cmd.Flags().StringArrayVar(&members, "member", nil, "Member identity (repeatable)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func addTypeTaskFlags(cmd *cobra.Command, typeID, task *string, taskRequired bool) {
	cmd.Flags().StringVar(typeID, "type", "", "Instance type (required)")
	cmd.Flags().StringVar(task, "task", "", "Task within the type")
	_ = cmd.MarkFlagRequired("type")
	if taskRequired {
		_ = cmd.MarkFlagRequired("task")
	}
}
