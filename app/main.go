package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ydb-platform/colbuild/app/columnify"
	"github.com/ydb-platform/colbuild/app/version"
)

var rootCmd = &cobra.Command{
	Use:   "colbuild",
	Short: "Columnar array construction toolkit",
}

func init() {
	rootCmd.AddCommand(columnify.Cmd)
	rootCmd.AddCommand(version.Cmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
