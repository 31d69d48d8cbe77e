// Package health provides liveness and readiness endpoints for Lineage.
//
// # Endpoints
//
//   - /healthz: Liveness probe, the process is running
//   - /readyz: Readiness probe, the webhook can answer reviews
//   - /version: Build information
//
// Probe paths come from config.HealthConfig.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("config", health.ConfigCheck())
//	checker.RegisterCheck("store", health.PingCheck(store))
//	checker.RegisterInformational("collector", health.CollectorCheck(exp.Stats))
//
//	checker.Register(mux, &cfg.Telemetry.Health, version, commit, buildTime)
//
// # Informational checks
//
// A failing informational check is reported in the readiness response but
// leaves the status "ready". The span collector is registered this way:
// while it is unreachable spans wait in the bounded buffer and admission
// continues unaffected.
//
// A check can be skipped for one request with /readyz?exclude=store.
//
// # Example Response
//
// Readiness response (/readyz):
//
//	{
//	    "status": "ready",
//	    "checks": {
//	        "config": {"status": "ok"},
//	        "store": {"status": "ok"},
//	        "collector": {"status": "unhealthy", "message": "collector not connected, 12 spans buffered", "informational": true}
//	    },
//	    "timestamp": "2026-10-19T10:30:00Z"
//	}
package health
