// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation type constants used in switch statements across metrics.
const (
	// OpClassification represents PaddyNet inference operations.
	OpClassification = "classification"
	// OpModelLoad represents model loading operations.
	OpModelLoad = "model_load"
	// OpDetection represents pest detection operations.
	OpDetection = "detection"
	// OpCapture represents frame capture operations.
	OpCapture = "capture"
	// OpPreprocess represents tensor preprocessing operations.
	OpPreprocess = "preprocess"
	// OpLocalize represents region proposal operations.
	OpLocalize = "localize"
	// OpReconcile represents reconciliation operations.
	OpReconcile = "reconcile"
	// OpDbQuery represents database query operations.
	OpDbQuery = "db_query"
	// OpDbInsert represents database insert operations.
	OpDbInsert = "db_insert"
	// OpDbDelete represents database delete operations.
	OpDbDelete = "db_delete"
	// OpTransaction represents database transaction operations.
	OpTransaction = "transaction"
	// OpSearch represents search operations.
	OpSearch = "search"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount8 defines 8 exponential buckets.
	BucketCount8 = 8
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// Time and conversion constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
	// MillisecondsPerSecond is the conversion factor from seconds to milliseconds.
	MillisecondsPerSecond = 1000.0
)
