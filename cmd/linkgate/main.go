package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/linkgate/pkg/client"
	"github.com/rmax-ai/linkgate/pkg/mcp"
	"github.com/rmax-ai/linkgate/pkg/reports"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

type options struct {
	endpoint string
	format   string
}

func (o *options) client() *client.Client {
	return client.NewClient(o.endpoint)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "linkgate [subcommand]",
		Short: "A CLI tool for the linkgate link store",
		// Silence errors because we will print the error ourselves in main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unsupported format %q: want text|json", opts.format)
			}
			return nil
		},
	}

	defaultEndpoint := os.Getenv("LINKGATE_ENDPOINT")
	if defaultEndpoint == "" {
		defaultEndpoint = client.DefaultEndpoint
	}
	rootCmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", defaultEndpoint, "linkgate-d base URL")
	rootCmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format [text, json]")

	rootCmd.AddCommand(
		newLinksCmd(opts),
		newInsertCmd(opts),
		newQueryCmd(opts),
		newExportCmd(opts),
		newPingCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newLinksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "List every stored link.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, err := opts.client().Links(cmd.Context())
			if err != nil {
				return err
			}
			return printLinks(cmd.OutOrStdout(), opts.format, ls)
		},
	}
}

func newInsertCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <from:to> [<from:to>...]",
		Short: "Insert links, reusing ids of pairs that already exist.",
		Long: `Insert one batch of links. Each argument is a from:to pair, and comma separated
lists are accepted too. The batch is applied as a whole: on failure nothing is stored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objects, err := client.ParsePairs(strings.Join(args, ","))
			if err != nil {
				return err
			}
			ls, err := opts.client().InsertLinks(cmd.Context(), objects)
			if err != nil {
				return err
			}
			return printLinks(cmd.OutOrStdout(), opts.format, ls)
		},
	}
}

func newQueryCmd(opts *options) *cobra.Command {
	var variables string
	cmd := &cobra.Command{
		Use:   "query <graphql>",
		Short: "Run a raw GraphQL operation and print its data.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var vars map[string]any
			if variables != "" {
				if err := json.Unmarshal([]byte(variables), &vars); err != nil {
					return fmt.Errorf("invalid --variables: %w", err)
				}
			}
			data, err := opts.client().Query(cmd.Context(), args[0], vars)
			if err != nil {
				return err
			}
			return writeIndentedJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&variables, "variables", "", "JSON object of operation variables")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a snapshot of the store as CSV, JSON or a Graphviz digraph.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := reports.NewLinksReport(opts.client(), reports.ReportFormat(as))
			if err != nil {
				return err
			}
			out, err := report.Generate(cmd.Context())
			if err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&as, "as", "csv", "export format [csv, json, dot]")
	return cmd
}

func newPingCmd(opts *options) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that linkgate-d is up.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			ctx := cmd.Context()
			var (
				status client.Status
				err    error
			)
			if wait > 0 {
				waitCtx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()
				status, err = c.WaitReady(waitCtx)
			} else {
				status, err = c.Ping(ctx)
			}
			if err != nil {
				return fmt.Errorf("is linkgate-d running at %s? %w", c.Endpoint(), err)
			}
			if opts.format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), green(status.Status), status.Version)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep retrying for up to this long")
	return cmd
}

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol on stdio, backed by linkgate-d.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(opts.endpoint).Serve()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkgate %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}

func printLinks(out io.Writer, format string, ls []client.Link) error {
	if format == "json" {
		if ls == nil {
			ls = []client.Link{}
		}
		e := json.NewEncoder(out)
		e.SetIndent("", "  ")
		return e.Encode(ls)
	}
	if len(ls) == 0 {
		fmt.Fprintln(out, yellow("no links"))
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFROM\tTO")
	for _, l := range ls {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", l.ID, l.FromID, l.ToID)
	}
	return tw.Flush()
}

func writeIndentedJSON(out io.Writer, b []byte) error {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	e := json.NewEncoder(out)
	e.SetIndent("", "  ")
	if err := e.Encode(decoded); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
