package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"mercator-hq/lineage/pkg/cli"
	"mercator-hq/lineage/pkg/tracecontext"
)

var codecFlags struct {
	output string
}

var encodeCmd = &cobra.Command{
	Use:   "encode [TRACEPARENT [TRACESTATE]]",
	Short: "Encode W3C trace headers as an annotation value",
	Long: `Encode a traceparent and optional tracestate header as the value stored in
the trace-context annotation.

Without arguments a new sampled context is generated.

Examples:
  lineage encode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
  lineage encode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01 vendor=value
  lineage encode`,
	Args: cobra.MaximumNArgs(2),
	RunE: runEncode,
}

var decodeCmd = &cobra.Command{
	Use:   "decode VALUE",
	Short: "Decode an annotation value",
	Long: `Decode the value of a trace-context annotation and print its trace ID,
span ID, sampling decision and trace state.

Examples:
  lineage decode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
  lineage decode --output json "$(kubectl get deploy web -o jsonpath='{.metadata.annotations.alpha\.trace\.lineage\.io/context}')"`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&codecFlags.output, "output", "o", "text", "output format (text, json)")
}

// decodedContext is the printable form of a decoded annotation value.
type decodedContext struct {
	TraceID     string `json:"trace_id"`
	SpanID      string `json:"span_id"`
	Sampled     bool   `json:"sampled"`
	TraceState  string `json:"tracestate,omitempty"`
	TraceParent string `json:"traceparent"`
}

func newDecodedContext(tc tracecontext.TraceContext) decodedContext {
	traceparent, tracestate := tracecontext.EncodeHeaders(tc)
	return decodedContext{
		TraceID:     tc.TraceID.String(),
		SpanID:      tc.SpanID.String(),
		Sampled:     tc.Sampled,
		TraceState:  tracestate,
		TraceParent: traceparent,
	}
}

// String renders the text output.
func (d decodedContext) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trace ID:    %s\n", d.TraceID)
	fmt.Fprintf(&b, "Span ID:     %s\n", d.SpanID)
	fmt.Fprintf(&b, "Sampled:     %t\n", d.Sampled)
	fmt.Fprintf(&b, "Traceparent: %s", d.TraceParent)
	if d.TraceState != "" {
		fmt.Fprintf(&b, "\nTracestate:  %s", d.TraceState)
	}
	return b.String()
}

func runEncode(cmd *cobra.Command, args []string) error {
	var (
		tc  tracecontext.TraceContext
		err error
	)
	switch len(args) {
	case 0:
		tc, err = tracecontext.NewSampled()
	case 1:
		tc, err = tracecontext.DecodeHeaders(args[0], "")
	default:
		tc, err = tracecontext.DecodeHeaders(args[0], args[1])
	}
	if err != nil {
		return cli.NewCommandError("encode", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), tracecontext.Encode(tc))
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(codecFlags.output, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}

	tc, err := tracecontext.Decode(strings.TrimSpace(args[0]))
	if err != nil {
		if errors.Is(err, tracecontext.ErrMalformedContext) && verbose {
			fmt.Fprintln(cmd.ErrOrStderr(), "value is not a trace-context annotation; treated as absent by the webhook")
		}
		return cli.NewCommandError("decode", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), newDecodedContext(tc))
}
