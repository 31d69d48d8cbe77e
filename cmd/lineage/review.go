package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"mercator-hq/lineage/pkg/cli"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/tracing"
)

var reviewFlags struct {
	url                string
	file               string
	oldFile            string
	operation          string
	timeout            time.Duration
	insecureSkipVerify bool
	output             string
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Send a manifest to a webhook as an AdmissionReview",
	Long: `Wrap a YAML manifest in an AdmissionReview and send it to a running
webhook, then print the response.

With --trace the request carries a new sampled trace context in its
traceparent header, exactly as an instrumented API server would, and the
returned patch sets the annotation to a context of that trace.

Examples:
  # Review a create
  lineage review --url https://localhost:8443/mutate -f deploy.yaml --insecure-skip-verify

  # Review an update of a previously annotated object, as part of a new trace
  lineage --trace review -f deploy-v2.yaml --old deploy-v1.yaml --operation UPDATE`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringVar(&reviewFlags.url, "url", "https://localhost:8443"+config.DefaultMutatePath, "webhook URL")
	reviewCmd.Flags().StringVarP(&reviewFlags.file, "file", "f", "", "manifest of the object being written (required)")
	reviewCmd.Flags().StringVar(&reviewFlags.oldFile, "old", "", "manifest of the stored object for UPDATE")
	reviewCmd.Flags().StringVar(&reviewFlags.operation, "operation", string(admissionv1.Create), "admission operation (CREATE, UPDATE)")
	reviewCmd.Flags().DurationVar(&reviewFlags.timeout, "timeout", 10*time.Second, "request timeout")
	reviewCmd.Flags().BoolVar(&reviewFlags.insecureSkipVerify, "insecure-skip-verify", false, "skip verification of the webhook certificate")
	reviewCmd.Flags().StringVarP(&reviewFlags.output, "output", "o", "text", "output format (text, json)")
	_ = reviewCmd.MarkFlagRequired("file")
}

// reviewResult is the printable form of an AdmissionReview response.
type reviewResult struct {
	UID      string          `json:"uid"`
	Allowed  bool            `json:"allowed"`
	Patch    json.RawMessage `json:"patch,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	TraceID  string          `json:"trace_id,omitempty"`
}

// String renders the text output.
func (r reviewResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "UID:      %s\n", r.UID)
	fmt.Fprintf(&b, "Allowed:  %t", r.Allowed)
	if r.TraceID != "" {
		fmt.Fprintf(&b, "\nTrace ID: %s", r.TraceID)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\nWarning:  %s", w)
	}
	if len(r.Patch) > 0 {
		fmt.Fprintf(&b, "\nPatch:    %s", r.Patch)
	}
	return b.String()
}

func runReview(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(reviewFlags.output, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}

	op := admissionv1.Operation(strings.ToUpper(reviewFlags.operation))
	if op != admissionv1.Create && op != admissionv1.Update {
		return cli.NewConfigError("operation", fmt.Sprintf("unsupported operation %q", reviewFlags.operation))
	}
	if op == admissionv1.Update && reviewFlags.oldFile == "" {
		return cli.NewConfigError("old", "UPDATE requires --old")
	}

	obj, err := readManifest(reviewFlags.file)
	if err != nil {
		return cli.NewCommandError("review", err)
	}
	var old *unstructured.Unstructured
	if op == admissionv1.Update {
		if old, err = readManifest(reviewFlags.oldFile); err != nil {
			return cli.NewCommandError("review", err)
		}
	}

	req, err := newAdmissionRequest(op, obj, old)
	if err != nil {
		return cli.NewCommandError("review", err)
	}

	ctx, tc, err := commandContext(cmd.Context())
	if err != nil {
		return cli.NewCommandError("review", err)
	}

	var exp *tracing.Exporter
	if traceFlag {
		// Spans of this invocation only provide the request's parent span;
		// they are never exported.
		exportCfg := config.NewDefaultConfig().Exporter
		exportCfg.Enabled = false
		exp, err = tracing.NewExporter(tracing.Config{
			ServiceName:    "lineage-cli",
			ServiceVersion: Version,
			Export:         &exportCfg,
		})
		if err != nil {
			return cli.NewCommandError("review", err)
		}
		defer exp.Shutdown(context.Background())
	}

	client := newReviewClient(exp, reviewFlags.timeout, reviewFlags.insecureSkipVerify)
	resp, err := sendReview(ctx, client, reviewFlags.url, req)
	if err != nil {
		return cli.NewCommandError("review", err)
	}

	result := reviewResult{
		UID:      string(resp.UID),
		Allowed:  resp.Allowed,
		Patch:    json.RawMessage(resp.Patch),
		Warnings: resp.Warnings,
	}
	if tc.IsValid() {
		result.TraceID = tc.TraceID.String()
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result)
}

// readManifest reads a single YAML or JSON object.
func readManifest(path string) (*unstructured.Unstructured, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*unstructured.Unstructured, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}

	// Round trip through JSON so nested values have the types apimachinery
	// expects (int64, map[string]interface{}).
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest: %w", err)
	}
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid object: %w", err)
	}
	if obj.GetName() == "" {
		return nil, fmt.Errorf("manifest has no metadata.name")
	}
	return obj, nil
}

func newAdmissionRequest(op admissionv1.Operation, obj, old *unstructured.Unstructured) (*admissionv1.AdmissionRequest, error) {
	raw, err := obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	gvk := obj.GroupVersionKind()
	req := &admissionv1.AdmissionRequest{
		UID:       types.UID(uuid.NewString()),
		Kind:      metav1.GroupVersionKind{Group: gvk.Group, Version: gvk.Version, Kind: gvk.Kind},
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Operation: op,
		Object:    runtime.RawExtension{Raw: raw},
	}
	if old != nil {
		oldRaw, err := old.MarshalJSON()
		if err != nil {
			return nil, err
		}
		req.OldObject = runtime.RawExtension{Raw: oldRaw}
	}
	return req, nil
}

func newReviewClient(exp *tracing.Exporter, timeout time.Duration, insecureSkipVerify bool) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Transport: tracing.Transport(base, exp),
		Timeout:   timeout,
	}
}

// sendReview posts req and returns the response of the review.
func sendReview(ctx context.Context, client *http.Client, url string, req *admissionv1.AdmissionRequest) (*admissionv1.AdmissionResponse, error) {
	body, err := json.Marshal(admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: admissionv1.SchemeGroupVersion.String(),
			Kind:       "AdmissionReview",
		},
		Request: req,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode review: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("review request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var review admissionv1.AdmissionReview
	if err := json.Unmarshal(respBody, &review); err != nil {
		return nil, fmt.Errorf("failed to decode review: %w", err)
	}
	if review.Response == nil {
		return nil, fmt.Errorf("webhook returned a review without response")
	}
	return review.Response, nil
}
