package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/cli"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/objectstore"
	"mercator-hq/lineage/pkg/tracecontext"
)

var storeFlags struct {
	file      string
	namespace string
	output    string
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write a manifest to the configured object store",
	Long: `Create or update an object in the object store configured under "store".

Traced kinds are annotated exactly as the webhook would annotate them. Pass
--trace to write as part of a new sampled trace; without it the write is
untraced and any existing annotation is kept.

The memory backend lives only for this invocation, so apply is mainly useful
with the sqlite backend.

Examples:
  LINEAGE_STORE_BACKEND=sqlite lineage --trace apply -f deploy.yaml`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

var linksCmd = &cobra.Command{
	Use:   "links KIND NAME",
	Short: "List the recorded links of an object",
	Long: `List the trace contexts an object's annotation replaced, oldest first.

Examples:
  lineage links Deployment web -n default
  lineage links ConfigMap settings -n default -o csv`,
	Args: cobra.ExactArgs(2),
	RunE: runLinks,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(linksCmd)

	applyCmd.Flags().StringVarP(&storeFlags.file, "file", "f", "", "manifest to write (required)")
	_ = applyCmd.MarkFlagRequired("file")

	linksCmd.Flags().StringVarP(&storeFlags.namespace, "namespace", "n", "", "object namespace")
	linksCmd.Flags().StringVarP(&storeFlags.output, "output", "o", "text", "output format (text, json, csv)")
}

// openStore opens the configured object store.
func openStore(cmd *cobra.Command) (objectstore.Store, tracecontext.Stage, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, "", cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	stage, err := tracecontext.ParseStage(cfg.Admission.Stage)
	if err != nil {
		return nil, "", cli.NewConfigError("admission.stage", err.Error())
	}
	kinds, err := admission.ParseKinds(cfg.Admission.TracedKinds)
	if err != nil {
		return nil, "", cli.NewConfigError("admission.traced_kinds", err.Error())
	}

	store, err := objectstore.Open(&cfg.Store, objectstore.Options{Stage: stage, Kinds: kinds})
	if err != nil {
		return nil, "", cli.NewCommandError(cmd.Name(), err)
	}
	return store, stage, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	obj, err := readManifest(storeFlags.file)
	if err != nil {
		return cli.NewCommandError("apply", err)
	}

	store, stage, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, _, err := commandContext(cmd.Context())
	if err != nil {
		return cli.NewCommandError("apply", err)
	}

	current, err := store.Get(ctx, obj.GetKind(), obj.GetNamespace(), obj.GetName())
	action := "created"
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		obj, err = store.Create(ctx, obj)
	case err == nil:
		action = "updated"
		obj.SetUID(current.GetUID())
		obj, err = store.Update(ctx, obj)
	}
	if err != nil {
		return cli.NewCommandError("apply", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s/%s %s (uid %s, resourceVersion %s)\n",
		strings.ToLower(obj.GetKind()), obj.GetName(), action, obj.GetUID(), obj.GetResourceVersion())
	if value, ok := tracecontext.Lookup(obj, tracecontext.AnnotationKey(stage)); ok {
		fmt.Fprintf(out, "%s: %s\n", tracecontext.AnnotationKey(stage), value)
	}
	return nil
}

// linkRows is the printable form of an object's link history.
type linkRows []objectstore.LinkRecord

// String renders the text output.
func (r linkRows) String() string {
	if len(r) == 0 {
		return "no links recorded"
	}
	var b strings.Builder
	for i, rec := range r {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "rv %-4s %s  trace %s  span %s  sampled=%t",
			rec.ResourceVersion,
			rec.RecordedAt.UTC().Format(time.RFC3339),
			rec.Link.TraceID,
			rec.Link.SpanID,
			rec.Link.Sampled,
		)
	}
	return b.String()
}

// CSVRows implements cli.CSVRows.
func (r linkRows) CSVRows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, rec := range r {
		rows = append(rows, []string{
			rec.ResourceVersion,
			rec.RecordedAt.UTC().Format(time.RFC3339Nano),
			tracecontext.Encode(tracecontext.FromSpanContext(rec.Link.SpanContext())),
			rec.Link.Reason,
		})
	}
	return rows
}

func runLinks(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(storeFlags.output, cli.FormatText, cli.FormatJSON, cli.FormatCSV)
	if err != nil {
		return err
	}
	formatter := cli.NewFormatter(format)
	if format == cli.FormatCSV {
		formatter = &cli.CSVFormatter{Headers: []string{"resource_version", "recorded_at", "context", "reason"}}
	}

	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	obj, err := store.Get(cmd.Context(), args[0], storeFlags.namespace, args[1])
	if err != nil {
		return cli.NewCommandError("links", err)
	}
	links, err := store.Links(cmd.Context(), obj.GetUID())
	if err != nil {
		return cli.NewCommandError("links", err)
	}
	return formatter.FormatTo(cmd.OutOrStdout(), linkRows(links))
}
