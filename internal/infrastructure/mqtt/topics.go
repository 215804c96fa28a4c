package mqtt

import "fmt"

// Topic prefixes for the SchoolTrack MQTT namespace.
//
// Agent software on managed devices publishes under schooltrack/heartbeat;
// the core publishes processed events under schooltrack/core.
const (
	// TopicPrefix is the base for all SchoolTrack topics.
	TopicPrefix = "schooltrack"

	// TopicPrefixCore is the base for topics published by the core service.
	TopicPrefixCore = "schooltrack/core"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "schooltrack/system"
)

// Topics provides builders for SchoolTrack MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	hb := topics.DeviceHeartbeat("SN-4411-A")
//	// Returns: "schooltrack/heartbeat/SN-4411-A"
type Topics struct{}

// DeviceHeartbeat returns the topic an on-device agent publishes its
// periodic heartbeat to.
//
// Example: schooltrack/heartbeat/SN-4411-A
func (Topics) DeviceHeartbeat(serialNumber string) string {
	return fmt.Sprintf("%s/heartbeat/%s", TopicPrefix, serialNumber)
}

// AllHeartbeats returns a pattern matching heartbeats from every device.
//
// Pattern: schooltrack/heartbeat/+
func (Topics) AllHeartbeats() string {
	return fmt.Sprintf("%s/heartbeat/+", TopicPrefix)
}

// CoreDeviceEvent returns the topic for device lifecycle events published
// by the core (assigned, unassigned, retired).
//
// Example: schooltrack/core/device/RTB/LT/KIG/002/assigned
func (Topics) CoreDeviceEvent(nameTag, event string) string {
	return fmt.Sprintf("%s/device/%s/%s", TopicPrefixCore, nameTag, event)
}

// CoreRuleFired returns the topic published when an automation rule runs.
//
// Example: schooltrack/core/rule/rule-offline-check/fired
func (Topics) CoreRuleFired(ruleID string) string {
	return fmt.Sprintf("%s/rule/%s/fired", TopicPrefixCore, ruleID)
}

// SystemStatus returns the service status topic, also used for the
// broker LWT so consumers see an ungraceful disconnect.
//
// Example: schooltrack/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all SchoolTrack topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: schooltrack/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
