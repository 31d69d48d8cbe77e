// Lineage is a mutating admission webhook that records W3C trace context on
// Kubernetes objects, so that controllers reconciling an object can continue
// the trace of the request that last wrote it.
//
// Usage:
//
//	# Start the webhook with default configuration
//	lineage run
//
//	# Start with a configuration file
//	lineage run --config /etc/lineage/config.yaml
//
//	# Encode a traceparent in annotation form
//	lineage encode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
//
//	# Decode an annotation value
//	lineage decode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
//
//	# Send a manifest to a running webhook as a traced AdmissionReview
//	lineage --trace review --url https://localhost:8443/mutate -f deploy.yaml
//
//	# Show version information
//	lineage version
package main

func main() {
	Execute()
}
