package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds command listing and worked examples.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCommandsCmd(rootCmd))
	rootCmd.AddCommand(newExamplesCmd())
}

type commandEntry struct {
	Group   string `json:"group"`
	Command string `json:"command"`
	Summary string `json:"summary"`
}

// commandTree flattens the runnable commands under root, grouped by their
// top-level parent.
func commandTree(root *cobra.Command) []commandEntry {
	var out []commandEntry
	for _, top := range root.Commands() {
		if top.Hidden || top.Name() == "help" || top.Name() == "completion" {
			continue
		}
		if top.Runnable() && !top.HasSubCommands() {
			out = append(out, commandEntry{Group: "general", Command: top.Use, Summary: top.Short})
			continue
		}
		for _, sub := range top.Commands() {
			if sub.Hidden {
				continue
			}
			out = append(out, commandEntry{
				Group:   top.Name(),
				Command: top.Name() + " " + sub.Use,
				Summary: sub.Short,
			})
		}
	}
	return out
}

func newCommandsCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by group",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			entries := commandTree(root)
			if output.IsJSON() {
				return output.JSON(entries)
			}

			width := 0
			for _, e := range entries {
				width = max(width, len(e.Command))
			}
			group := ""
			for _, e := range entries {
				if e.Group != group {
					if group != "" {
						output.Println()
					}
					group = e.Group
					output.Bold("%s", strings.ToUpper(group))
				}
				output.Printf("  %-*s  %s\n", width, e.Command, output.DimText(e.Summary))
			}
			return nil
		},
	}
}

var examples = []struct {
	title    string
	commands []string
}{
	{"Price a call and its greeks", []string{
		"optlab options price --spot 100 --strike 105 --days 30 --vol 0.3",
		"optlab options greeks --spot 100 --strike 105 --days 30 --vol 0.3 --kind put",
	}},
	{"Recover implied volatility", []string{
		"optlab options iv --spot 100 --strike 100 --days 90 --price 6.58",
	}},
	{"Compare strategies on a saved snapshot", []string{
		"optlab data snapshot GGAL",
		"optlab strategy analyze --symbol GGAL --rank probability --top 3",
		"optlab strategy payoff iron_condor --symbol GGAL --strikes 90,95,105,110",
	}},
	{"Simulate and stress a position", []string{
		"optlab risk simulate bull_call_spread --spot 100 --strikes 95,105 --paths 20000 --seed 42",
		"optlab risk stress long_straddle --spot 100 --vol 0.35",
		"optlab risk report covered_call --symbol GGAL --save",
	}},
	{"Serve the HTTP API", []string{
		"optlab serve --port 8080",
		"curl -s localhost:8080/api/v1/strategies",
	}},
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show usage examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string][]string, len(examples))
				for _, ex := range examples {
					out[ex.title] = ex.commands
				}
				return output.JSON(out)
			}
			for i, ex := range examples {
				if i > 0 {
					output.Println()
				}
				output.Bold("%s", ex.title)
				for _, c := range ex.commands {
					output.Printf("  $ %s\n", c)
				}
			}
			return nil
		},
	}
}
