package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/lineage/pkg/cli"
	"mercator-hq/lineage/pkg/telemetry/tracing"
	"mercator-hq/lineage/pkg/tracecontext"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	traceFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Lineage - trace context for Kubernetes objects",
	Long: `Lineage is a mutating admission webhook that stores the W3C trace context
of every write in an annotation on the written object.

Controllers that later reconcile the object continue the writer's trace, and
each admission span links the context it replaced, so a chain of writes and
reconciles can be followed across processes.

Pass --trace to start a new sampled trace for the requests issued by a single
invocation, such as "lineage --trace review".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and LINEAGE_* variables when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "start a new sampled trace for the requests of this invocation")
}

// commandContext returns the base context of a command. With --trace it
// carries a fresh sampled trace context, which is also returned.
func commandContext(ctx context.Context) (context.Context, tracecontext.TraceContext, error) {
	if !traceFlag {
		return ctx, tracecontext.TraceContext{}, nil
	}
	tc, err := tracecontext.NewSampled()
	if err != nil {
		return ctx, tracecontext.TraceContext{}, err
	}
	return tracing.ContextWithTraceContext(ctx, tc), tc, nil
}
