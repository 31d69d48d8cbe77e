// Package webhook serves the admission mutator as a Kubernetes mutating
// admission webhook.
//
// The API server sends an admission.k8s.io/v1 AdmissionReview for every
// create and update of a traced kind. When the API server has tracing
// enabled the call carries the W3C traceparent of the writing request; that
// context is passed to admission.Apply and the resulting annotation is
// returned as a JSON patch. Requests are always allowed: a failure inside
// the webhook leaves the object unchanged instead of failing the write.
//
// Register the handler behind tracing.Middleware so the admission span is
// recorded by the process exporter:
//
//	wh, err := webhook.NewFromConfig(&cfg.Admission, logger, collector)
//	mux.Handle(cfg.Webhook.MutatePath, tracing.Middleware(exp)(wh))
package webhook
