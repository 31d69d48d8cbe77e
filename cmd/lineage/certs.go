package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/lineage/pkg/cli"
	"mercator-hq/lineage/pkg/server"
)

var certsFlags struct {
	service   string
	namespace string
	hosts     string
	org       string
	validity  int
	keySize   int
	output    string
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage webhook serving certificates",
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed serving certificate",
	Long: `Generate a self-signed certificate and key for the webhook service.

The API server only calls webhooks over HTTPS and verifies the serving
certificate against the caBundle of the MutatingWebhookConfiguration. The
generated certificate is its own CA; its base64 form is printed for the
caBundle field.

Use a certificate manager for production clusters. The webhook reloads the
files when they change, so rotated certificates need no restart.

Examples:
  # Certificate for service lineage in namespace lineage-system
  lineage certs generate --service lineage --namespace lineage-system

  # Local development
  lineage certs generate --host localhost,127.0.0.1 --output certs/`,
	Args: cobra.NoArgs,
	RunE: generateCertificate,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsGenerateCmd)

	certsGenerateCmd.Flags().StringVar(&certsFlags.service, "service", "lineage", "webhook service name")
	certsGenerateCmd.Flags().StringVar(&certsFlags.namespace, "namespace", "lineage-system", "webhook service namespace")
	certsGenerateCmd.Flags().StringVar(&certsFlags.hosts, "host", "", "comma-separated hostnames and IPs (replaces the service names)")
	certsGenerateCmd.Flags().StringVar(&certsFlags.org, "org", "Lineage", "organization name")
	certsGenerateCmd.Flags().IntVar(&certsFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().IntVar(&certsFlags.keySize, "key-size", 2048, "RSA key size (2048, 3072, 4096)")
	certsGenerateCmd.Flags().StringVarP(&certsFlags.output, "output", "o", "certs", "output directory")
}

// serviceHosts returns the names the API server uses to reach a service.
func serviceHosts(service, namespace string) []string {
	return []string{
		fmt.Sprintf("%s.%s.svc", service, namespace),
		fmt.Sprintf("%s.%s.svc.cluster.local", service, namespace),
		fmt.Sprintf("%s.%s", service, namespace),
		service,
	}
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	hosts := serviceHosts(certsFlags.service, certsFlags.namespace)
	if certsFlags.hosts != "" {
		hosts = hosts[:0]
		for _, h := range strings.Split(certsFlags.hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	if certsFlags.validity <= 0 {
		return cli.NewConfigError("validity", "must be positive")
	}

	certPEM, keyPEM, err := server.GenerateSelfSigned(server.CertificateRequest{
		Hosts:        hosts,
		Organization: certsFlags.org,
		Validity:     time.Duration(certsFlags.validity) * 24 * time.Hour,
		KeySize:      certsFlags.keySize,
	})
	if err != nil {
		return cli.NewCommandError("certs generate", err)
	}

	// Create output directory with restricted permissions (0750)
	if err := os.MkdirAll(certsFlags.output, 0o750); err != nil {
		return cli.NewCommandError("certs generate", fmt.Errorf("failed to create output directory: %w", err))
	}
	certPath := filepath.Join(certsFlags.output, "tls.crt")
	keyPath := filepath.Join(certsFlags.output, "tls.key")
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return cli.NewCommandError("certs generate", fmt.Errorf("failed to write certificate: %w", err))
	}
	// Private key is readable by the owner only (0600)
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return cli.NewCommandError("certs generate", fmt.Errorf("failed to write private key: %w", err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Certificate generated: %s\n", certPath)
	fmt.Fprintf(out, "✓ Private key generated: %s\n", keyPath)
	fmt.Fprintf(out, "  hosts: %s\n", strings.Join(hosts, ", "))
	fmt.Fprintf(out, "  valid for: %d days\n", certsFlags.validity)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To use with Lineage, add to your config.yaml:")
	fmt.Fprintln(out, "---")
	fmt.Fprintln(out, "webhook:")
	fmt.Fprintln(out, "  tls:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintf(out, "    cert_file: %q\n", certPath)
	fmt.Fprintf(out, "    key_file: %q\n", keyPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "caBundle for the MutatingWebhookConfiguration:")
	fmt.Fprintln(out, base64.StdEncoding.EncodeToString(certPEM))
	return nil
}
