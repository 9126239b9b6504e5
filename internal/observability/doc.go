// Package observability provides logging, metrics, and context helpers for
// the identity resolution service.
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("person_id", id.String()).Msg("record created")
//
// # Metrics
//
// Initialize metrics once at startup and record from services:
//
//	metrics := observability.NewMetrics("identity_resolution")
//	metrics.Resolutions.WithLabelValues("created").Inc()
//	metrics.LinksReassigned.Add(3)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - person_id: Person record identifier
//   - context_id: External context identifier for relationship links
//   - primary_id: Surviving record of a merge
//   - group_size: Number of records in a duplicate group
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
