package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHeartbeat records a device heartbeat observation.
//
// Called from the MQTT ingest path each time an agent checks in.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - serialNumber: Device serial number from the heartbeat topic
//   - nameTag: Current name tag of the device (empty if unregistered)
//   - seenAt: Timestamp reported by the agent
func (c *Client) WriteHeartbeat(serialNumber, nameTag string, seenAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"heartbeat",
		map[string]string{
			"serial_number": serialNumber,
			"name_tag":      nameTag,
		},
		map[string]interface{}{
			"seen": 1,
		},
		seenAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteFleetSnapshot records an aggregate snapshot of the device fleet.
//
// Published periodically so dashboards can chart fleet composition and
// depreciation over time.
//
// Parameters:
//   - total: Total registered devices
//   - online: Devices seen within the online window
//   - inMaintenance: Devices currently flagged for maintenance
//   - bookValue: Sum of current depreciated values across the fleet
func (c *Client) WriteFleetSnapshot(total, online, inMaintenance int, bookValue float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet",
		map[string]string{},
		map[string]interface{}{
			"total":          total,
			"online":         online,
			"in_maintenance": inMaintenance,
			"book_value":     bookValue,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceValue records the depreciated value of a single device.
//
// Parameters:
//   - nameTag: Device name tag (e.g., "RTB/LT/KIG/002")
//   - category: Device category (laptop, desktop, projector, other)
//   - currentValue: Depreciated value at the time of writing
func (c *Client) WriteDeviceValue(nameTag, category string, currentValue float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_value",
		map[string]string{
			"name_tag": nameTag,
			"category": category,
		},
		map[string]interface{}{
			"value": currentValue,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
