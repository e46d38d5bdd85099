package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/usherhq/usher/internal/buildinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.GetBuildInfo()
		bold := color.New(color.Bold)
		bold.Println(info.Service)
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Commit:  %s\n", info.CommitHash)
		fmt.Printf("About:   %s\n", info.About)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
