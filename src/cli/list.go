package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"instance-provision/src/inventory"
	"instance-provision/src/provision"
)

func newListCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list [all|instances|templates|logs]",
		Short: "List provisioned instances, player templates and log runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := inventory.KindAll
			if len(args) == 1 {
				kind = strings.ToLower(args[0])
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *provision.Engine) error {
				inv, err := inventory.New(eng.Layout())
				if err != nil {
					return err
				}
				entries, err := inv.List(kind)
				if err != nil {
					return err
				}
				switch output {
				case "json":
					if entries == nil {
						entries = []inventory.Entry{}
					}
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				case "table", "":
					return renderTable(a.stdout, entries)
				default:
					return fmt.Errorf("unsupported --output: %s", output)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func renderTable(w io.Writer, entries []inventory.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTYPE\tTASK\tOWNER\tNAME\tTIMESTAMP\tLINKS")
	for _, e := range entries {
		links := make([]string, 0, len(e.Links))
		for _, l := range e.Links {
			name := l.Name
			if l.Dangles {
				name += "(dangling)"
			}
			links = append(links, name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", e.Kind, e.Type, e.Task, e.Owner, e.Name, e.Timestamp, strings.Join(links, ","))
	}
	return tw.Flush()
}
