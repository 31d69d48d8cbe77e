package exporter

import (
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCOptions configures the OTLP/gRPC collector client.
type GRPCOptions struct {
	// Endpoint is the collector host:port.
	Endpoint string

	// Insecure disables TLS.
	Insecure bool

	// Headers are sent as gRPC metadata with every export.
	Headers map[string]string

	// Timeout bounds a single export call. Zero keeps the client default.
	Timeout time.Duration

	// DialOptions are appended to the connection dial options.
	DialOptions []grpc.DialOption
}

// NewGRPCClientFactory returns a factory of OTLP/gRPC clients. Each client
// holds one long-lived HTTP/2 connection. The client's own retry is disabled;
// the Exporter owns the retry schedule.
func NewGRPCClientFactory(opts GRPCOptions) ClientFactory {
	return func() otlptrace.Client {
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(opts.Endpoint),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{Enabled: false}),
		}

		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}

		if len(opts.Headers) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(opts.Headers))
		}

		if opts.Timeout > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithTimeout(opts.Timeout))
		}

		if len(opts.DialOptions) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithDialOption(opts.DialOptions...))
		}

		return otlptracegrpc.NewClient(grpcOpts...)
	}
}
