package commands

import (
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// completionGenerators writes the completion script for each supported shell.
var completionGenerators = map[string]func(root *cobra.Command, w io.Writer) error{
	"bash":       func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	"zsh":        func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	"fish":       func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	"powershell": func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
}

func completionShells() []string {
	shells := make([]string, 0, len(completionGenerators))
	for name := range completionGenerators {
		shells = append(shells, name)
	}
	sort.Strings(shells)
	return shells
}

// newCompletionCmd creates the `smartshell completion` command.
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Print a completion script for bash, zsh, fish or powershell",
		Long: `Print a completion script for smartshell subcommands and flags.

  source <(smartshell completion bash)
  smartshell completion fish | source
  smartshell completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             completionShells(),
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionGenerators[args[0]](cmd.Root(), cmd.OutOrStdout())
		},
	}
}
