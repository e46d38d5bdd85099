package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/usherhq/usher/internal/ticket"
)

// keygenCmd generates credentials for configuration files.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random key suitable as an application key or seal password",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := ticket.GenerateAppKey()
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		fmt.Println("Generated key (keep this secret):")
		if _, err := bold.Println(key); err != nil {
			// color can fail on exotic terminals; the key still matters
			fmt.Println(key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
