package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreTarget string

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore full speed immediately",
	Long: `Apply the normal speed limits right away, bypassing the off-delay.

Without --target every enabled target is restored. A named target is
restored even when it is disabled in the configuration.`,
	PreRunE: initializeApp,
	RunE:    runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVarP(&restoreTarget, "target", "t", "", "restore a single target by name")
}

func runRestore(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ctrl.ForceRestore(cmd.Context(), restoreTarget); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	if restoreTarget == "" {
		fmt.Println("✓ Full speed restored on all enabled targets")
	} else {
		fmt.Printf("✓ Full speed restored on %s\n", restoreTarget)
	}
	return nil
}
