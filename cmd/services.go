package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List and toggle monitored services",
	Long: `Services seen on a Lucky source are registered as disabled the first time
they appear. Only enabled services count towards the activity metric.`,
}

var servicesListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List known services and their state",
	PreRunE: initializeApp,
	RunE:    runServicesList,
}

var servicesEnableCmd = &cobra.Command{
	Use:     "enable <service>...",
	Short:   "Enable one or more services",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: initializeApp,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setServices(args, true)
	},
}

var servicesDisableCmd = &cobra.Command{
	Use:     "disable <service>...",
	Short:   "Disable one or more services",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: initializeApp,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setServices(args, false)
	},
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesListCmd, servicesEnableCmd, servicesDisableCmd)
}

func runServicesList(cmd *cobra.Command, args []string) error {
	state, err := newServiceStore().Snapshot()
	if err != nil {
		return err
	}

	if len(state) == 0 {
		fmt.Println("No services registered yet. They appear after the first collection cycle.")
		return nil
	}

	ids := make([]string, 0, len(state))
	enabled := 0
	for id, on := range state {
		ids = append(ids, id)
		if on {
			enabled++
		}
	}
	slices.Sort(ids)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "State"})
	for _, id := range ids {
		t.AppendRow(table.Row{id, enabledLabel(state[id])})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d services", len(ids)), fmt.Sprintf("%d enabled", enabled)})
	t.Render()
	return nil
}

func setServices(ids []string, enabled bool) error {
	flags := make(map[string]bool, len(ids))
	for _, id := range ids {
		flags[id] = enabled
	}

	if err := newServiceStore().SetMany(flags); err != nil {
		return err
	}

	for _, id := range ids {
		fmt.Printf("✓ %s %s\n", id, enabledLabel(enabled))
	}
	return nil
}

func enabledLabel(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
