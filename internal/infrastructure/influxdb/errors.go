package influxdb

import "errors"

// Sentinel errors for the telemetry sink, matched with errors.Is().
var (
	// ErrNotConnected indicates the client has no InfluxDB connection.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed indicates a point write failed. Batched writes report
	// errors asynchronously through the error callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates the telemetry sink is switched off in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
