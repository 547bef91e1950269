package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "cvdesk",
	Short:         "Search, review and edit CVs on a CV management server",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, whoamiCmd)
	rootCmd.AddCommand(searchCmd, recentCmd, historyCmd, indexesCmd)
	rootCmd.AddCommand(viewCmd, editCmd, deleteCmd, downloadCmd)
	rootCmd.AddCommand(uploadCmd, batchCmd)
	rootCmd.AddCommand(auditCmd, configCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// errorf formats err for the terminal using the API client's wording.
func errorf(format string, err error) error {
	return fmt.Errorf(format+": %s", errMessage(err))
}
