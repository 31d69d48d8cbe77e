package health

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/exporter"
)

// Pinger is implemented by components that can verify their backend,
// such as the object store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConfigCheck fails until the process configuration has been loaded.
func ConfigCheck() CheckFunc {
	return func(ctx context.Context) error {
		if config.GetConfig() == nil {
			return errors.New("configuration not loaded")
		}
		return nil
	}
}

// PingCheck fails when p cannot reach its backend.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// CollectorCheck reports the span collector connection. Register it with
// RegisterInformational: losing the collector only delays spans.
func CollectorCheck(source exporter.StatsSource) CheckFunc {
	return func(ctx context.Context) error {
		stats := source()
		if stats.Connected {
			return nil
		}
		if stats.LastError != "" {
			return fmt.Errorf("collector unreachable, %d spans buffered: %s", stats.BufferedSpans, stats.LastError)
		}
		return fmt.Errorf("collector not connected, %d spans buffered", stats.BufferedSpans)
	}
}
