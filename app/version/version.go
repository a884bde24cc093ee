package version

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Filled in at build time via -ldflags.
var (
	Tag        string
	CommitHash string
	Branch     string
	CommitDate string
	GoVersion  string
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "version of current build",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(GetInfo())
	},
}

func GetInfo() string {
	sb := strings.Builder{}

	sb.WriteString("Git info:\n")
	sb.WriteString(fmt.Sprintf("\tBranch: %s\n", Branch))
	sb.WriteString(fmt.Sprintf("\tCommit: %s\n", CommitHash))
	sb.WriteString(fmt.Sprintf("\tTag: %s\n", Tag))
	sb.WriteString(fmt.Sprintf("\tCommit Date: %s\n\n", CommitDate))
	sb.WriteString("Build info:\n")
	sb.WriteString(fmt.Sprintf("\tCompiler version: %s\n", GoVersion))

	return sb.String()
}
