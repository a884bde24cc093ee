package columnify

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ydb-platform/colbuild/common"
)

var Cmd = &cobra.Command{
	Use:   "columnify",
	Short: "Convert CSV rows into an Arrow IPC file",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFromCLI(cmd, args); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

const (
	configFlag = "config"
	inputFlag  = "input"
	outputFlag = "output"
	headerFlag = "skip-header"
)

func init() {
	Cmd.Flags().StringP(configFlag, "c", "", "path to column schema file")
	Cmd.Flags().StringP(inputFlag, "i", "", "path to input CSV file")
	Cmd.Flags().StringP(outputFlag, "o", "", "path to output Arrow IPC file")
	Cmd.Flags().Bool(headerFlag, false, "skip the first CSV row")

	for _, flag := range []string{configFlag, inputFlag, outputFlag} {
		if err := Cmd.MarkFlagRequired(flag); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}
}

func runFromCLI(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return fmt.Errorf("get config flag: %v", err)
	}

	inputPath, err := cmd.Flags().GetString(inputFlag)
	if err != nil {
		return fmt.Errorf("get input flag: %v", err)
	}

	outputPath, err := cmd.Flags().GetString(outputFlag)
	if err != nil {
		return fmt.Errorf("get output flag: %v", err)
	}

	skipHeader, err := cmd.Flags().GetBool(headerFlag)
	if err != nil {
		return fmt.Errorf("get skip-header flag: %v", err)
	}

	cfg, err := newConfigFromPath(configPath)
	if err != nil {
		return fmt.Errorf("new config: %w", err)
	}

	logger := common.NewDefaultLogger()

	if err := run(logger, cfg, inputPath, outputPath, skipHeader); err != nil {
		return fmt.Errorf("columnify: %w", err)
	}

	return nil
}
