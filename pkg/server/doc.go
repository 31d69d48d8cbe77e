// Package server provides the HTTPS server of the Lineage admission webhook.
//
// The server mounts the webhook at the mutate path behind
// tracing.Middleware, which reads the W3C trace headers of the API server's
// call and attaches the span exporter to the request context. Liveness,
// readiness, version and Prometheus endpoints are served on the same
// listener.
//
// # Middleware Chain
//
//	RecoveryMiddleware -> RequestIDMiddleware -> LoggingMiddleware -> mux
//
// # Basic Usage
//
//	wh, _ := webhook.NewFromConfig(&cfg.Admission, logger, collector)
//	srv, err := server.NewServer(&cfg.Webhook, server.Options{
//	    Webhook:      wh,
//	    Exporter:     exp,
//	    Health:       checker,
//	    HealthConfig: &cfg.Telemetry.Health,
//	    Metrics:      collector.Handler(),
//	    MetricsPath:  cfg.Telemetry.Metrics.Path,
//	    Logger:       logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is canceled and shutdown completes
//
// # TLS
//
// The API server only calls webhooks over HTTPS. With webhook.tls.enabled the
// certificate and key files are loaded when the server starts; the minimum
// version is TLS 1.2 unless "1.3" is configured.
package server
