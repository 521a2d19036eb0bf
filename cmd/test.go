package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/seedbrake/lucky"
	"github.com/s0up4200/seedbrake/qbittorrent"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the connection to every source and target",
	Long: `Fetch each configured Lucky source once and probe each qBittorrent target.

Sources report the detected payload layout and the number of services found.
Targets report whether they are reachable, reachable but rejecting the
credentials, or unreachable.`,
	PreRunE: initializeApp,
	RunE:    runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

type sourceTester interface {
	Test(ctx context.Context) (lucky.Shape, []lucky.ServiceRecord, error)
}

type sourceCheck struct {
	name     string
	shape    lucky.Shape
	services int
	conns    int64
	elapsed  time.Duration
	err      error
}

func runTest(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	sources := a.collector.Sources()
	checks := make([]sourceCheck, len(sources))
	probes := make([]qbittorrent.ProbeResult, len(cfg.Targets))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			checks[i] = sourceCheck{name: src.Config.Name}
			tester, ok := src.Fetcher.(sourceTester)
			if !ok {
				checks[i].err = fmt.Errorf("source %s cannot be tested", src.Config.Name)
				return nil
			}
			start := time.Now()
			shape, records, err := tester.Test(ctx)
			checks[i].elapsed = time.Since(start)
			checks[i].shape = shape
			checks[i].services = len(records)
			checks[i].conns = lucky.TotalConnections(records)
			checks[i].err = err
			return nil
		})
	}
	for i, tc := range cfg.Targets {
		g.Go(func() error {
			probes[i] = a.actuator.Probe(ctx, qbittorrent.TargetFromConfig(tc))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0

	st := table.NewWriter()
	st.SetOutputMirror(os.Stdout)
	st.SetStyle(table.StyleRounded)
	st.SetTitle("Sources")
	st.AppendHeader(table.Row{"Name", "Enabled", "Layout", "Services", "Connections", "Time", "Result"})
	for i, c := range checks {
		result := "✓ OK"
		if c.err != nil {
			result = "✗ " + c.err.Error()
			failed++
		}
		st.AppendRow(table.Row{
			c.name,
			sources[i].Config.Enabled,
			c.shape.String(),
			c.services,
			c.conns,
			c.elapsed.Round(time.Millisecond),
			result,
		})
	}
	st.Render()

	tt := table.NewWriter()
	tt.SetOutputMirror(os.Stdout)
	tt.SetStyle(table.StyleRounded)
	tt.SetTitle("Targets")
	tt.AppendHeader(table.Row{"Name", "Enabled", "Verdict", "Version", "Time", "Error"})
	for i, p := range probes {
		if p.Verdict != qbittorrent.ProbeReachable {
			failed++
		}
		tt.AppendRow(table.Row{
			p.Target,
			cfg.Targets[i].Enabled,
			string(p.Verdict),
			p.Version,
			p.Elapsed.Round(time.Millisecond),
			p.Error,
		})
	}
	tt.Render()

	if failed > 0 {
		return fmt.Errorf("%d connection test(s) failed", failed)
	}
	fmt.Println("✓ All connections successful!")
	return nil
}
