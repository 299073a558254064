package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jholhewres/smartshell/pkg/smartshell/ostools"
)

// newToolsCmd creates the `smartshell tools` command that prints the
// tool catalog offered to the model.
func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the model can call",
		RunE: func(_ *cobra.Command, _ []string) error {
			tb := ostools.New(ostools.Options{})
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tCONFIRM\tDESCRIPTION")
			for _, b := range tb.Bindings() {
				confirm := ""
				if b.Spec.Dangerous {
					confirm = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Spec.Name, b.Spec.Category, confirm, b.Spec.Description)
			}
			return w.Flush()
		},
	}
}
