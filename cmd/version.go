package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the application name and version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", viper.GetString("app.name"), viper.GetString("app.version"))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
