package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bidon15/popdeploy/internal/steps"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List registered deployment steps",
	RunE:  runSteps,
}

func init() {
	rootCmd.AddCommand(stepsCmd)
}

type stepView struct {
	Name         string   `json:"name"`
	Tags         []string `json:"tags"`
	Dependencies []string `json:"dependencies,omitempty"`
	Optional     bool     `json:"optional"`
}

func stepViews(list []steps.Step) []stepView {
	views := make([]stepView, len(list))
	for i, s := range list {
		views[i] = stepView{
			Name:         s.Name,
			Tags:         s.Tags,
			Dependencies: s.Dependencies,
			Optional:     s.Optional,
		}
	}
	return views
}

func runSteps(cmd *cobra.Command, args []string) error {
	all := registry().Steps()

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), stepViews(all))
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "NAME", "TAGS", "DEPENDS ON", "DEFAULT")
	for _, s := range all {
		def := colorGreen("yes")
		if s.Optional {
			def = colorYellow("no")
		}
		deps := strings.Join(s.Dependencies, ",")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, strings.Join(s.Tags, ","), deps, def)
	}
	return w.Flush()
}
