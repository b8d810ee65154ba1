package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/fabpanel/pkg/client"
	"github.com/bft-labs/fabpanel/pkg/state"
)

// remoteFlags are shared by the subcommands that talk to a running panel.
type remoteFlags struct {
	url     string
	timeout time.Duration
}

func (r *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.url, "panel", envOr("FABPANEL_URL", "http://127.0.0.1:8080"), "panel REST API base URL")
	cmd.Flags().DurationVar(&r.timeout, "timeout", 10*time.Second, "request timeout")
}

func (r *remoteFlags) client() *client.Client {
	return client.New(r.url, &http.Client{Timeout: r.timeout}, nil)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newStatusCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running panel's devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := rf.client().Parts(cmd.Context())
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), snap)
		},
	}
	rf.register(cmd)
	return cmd
}

func writeSnapshot(w io.Writer, snap state.Snapshot) error {
	fmt.Fprintf(w, "busy: %t  matempty: %t", snap.Summary.Busy, snap.Summary.MatEmpty)
	if snap.Summary.CurrentJob != "" {
		fmt.Fprintf(w, "  job: %s", snap.Summary.CurrentJob)
	}
	fmt.Fprintln(w)
	if len(snap.Parts) == 0 {
		_, err := fmt.Fprintln(w, "no devices connected")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tTRANSPORT\tREMOTE\tSTATE\tJOB\tNOTE")
	for _, p := range snap.Parts {
		note := ""
		switch {
		case p.Faulted:
			note = "fault: " + p.Fault
		case !p.Connected:
			note = "disconnected"
		case p.MaterialEmpty:
			note = "empty"
		case p.BenchmarkLeft > 0:
			note = fmt.Sprintf("%d probes left", p.BenchmarkLeft)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Role, p.Transport, p.Remote, p.State, p.JobTitle, note)
	}
	return tw.Flush()
}

func newPrintCmd() *cobra.Command {
	var rf remoteFlags
	var name, title string
	cmd := &cobra.Command{
		Use:   "print [blueprint-file]",
		Short: "Start a print on a running panel",
		Long:  "Upload a blueprint file, or print one from the panel's catalog with --name.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rf.client()
			var (
				res client.Result
				err error
			)
			switch {
			case len(args) == 1 && name != "":
				return errors.New("give a blueprint file or --name, not both")
			case len(args) == 1:
				res, err = uploadFile(cmd.Context(), c, args[0], title)
			case name != "":
				res, err = c.PrintNamed(cmd.Context(), name, title)
			default:
				return errors.New("a blueprint file or --name is required")
			}
			if errors.Is(err, client.ErrRejected) {
				return fmt.Errorf("panel is busy: %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s started on part %d\n", res.JobID, res.PartID)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "catalog blueprint to print")
	cmd.Flags().StringVar(&title, "title", "", "job title (defaults to the blueprint name)")
	return cmd
}

func uploadFile(ctx context.Context, c *client.Client, path, title string) (client.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return client.Result{}, err
	}
	defer f.Close()
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c.Print(ctx, title, f)
}

func newBenchmarkCmd() *cobra.Command {
	var rf remoteFlags
	var probes int
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure print head round trips on a running panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rf.client().Benchmark(cmd.Context(), probes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "benchmark started on part %d\n", res.PartID)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().IntVar(&probes, "probes", 0, "probe count (0 uses the panel default)")
	return cmd
}

func newBlueprintsCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "blueprints",
		Short: "List a running panel's blueprint catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rf.client().Blueprints(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.Size, e.ModTime.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	rf.register(cmd)
	return cmd
}
