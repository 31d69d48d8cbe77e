package health

import (
	"encoding/json"
	"net/http"
	"runtime"

	"mercator-hq/lineage/pkg/config"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// readOnly rejects methods other than GET and HEAD.
func readOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// LivenessHandler answers the liveness probe. It runs no component checks:
// a webhook whose store or collector is down must not be restarted for it.
//
//	{"status": "ok", "timestamp": "2026-10-19T10:30:00Z"}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readOnly(w, r) {
			return
		}
		writeJSON(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler answers the readiness probe with the result of every
// registered check. It returns 503 when a non-informational check fails.
// Checks named in repeated exclude query parameters are skipped, as in
// /readyz?exclude=store.
//
//	{
//	    "status": "ready",
//	    "checks": {
//	        "config": {"status": "ok", "duration_ms": 100},
//	        "store": {"status": "ok", "duration_ms": 5200},
//	        "collector": {"status": "unhealthy", "message": "collector not connected, 12 spans buffered", "informational": true}
//	    },
//	    "timestamp": "2026-10-19T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readOnly(w, r) {
			return
		}

		status := c.CheckReadiness(r.Context(), r.URL.Query()["exclude"]...)

		code := http.StatusOK
		if status.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
	}
}

// VersionHandler serves the build information of the binary.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !readOnly(w, r) {
			return
		}
		writeJSON(w, r, http.StatusOK, info)
	}
}

// Register mounts the liveness and readiness handlers on mux at the paths
// of cfg, and the version handler at /version.
//
//	mux := http.NewServeMux()
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.Register(mux, &cfg.Telemetry.Health, version, commit, buildTime)
func (c *Checker) Register(mux *http.ServeMux, cfg *config.HealthConfig, version, commit, buildTime string) {
	liveness, readiness := cfg.LivenessPath, cfg.ReadinessPath
	if liveness == "" {
		liveness = config.DefaultLivenessPath
	}
	if readiness == "" {
		readiness = config.DefaultReadinessPath
	}

	mux.HandleFunc(liveness, c.LivenessHandler())
	mux.HandleFunc(readiness, c.ReadinessHandler())
	mux.HandleFunc("/version", VersionHandler(version, commit, buildTime))
}
