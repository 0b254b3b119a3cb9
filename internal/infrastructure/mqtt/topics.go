package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "remoteeye"

// Topics builds RemoteEye MQTT topics under a common prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("remoteeye")
//	topics.Push("a1b2c3")
//	// Returns: "remoteeye/push/a1b2c3"
type Topics struct {
	prefix string
}

// NewTopics returns topic builders rooted at prefix. Surrounding slashes
// are trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Push returns the push topic for a device's push token.
//
// Example: remoteeye/push/a1b2c3
func (t Topics) Push(pushToken string) string {
	return fmt.Sprintf("%s/push/%s", t.Prefix(), pushToken)
}

// AllPush returns a wildcard matching every push topic.
//
// Example: remoteeye/push/+
func (t Topics) AllPush() string {
	return t.Prefix() + "/push/+"
}

// SystemStatus returns the retained relay status topic.
//
// Example: remoteeye/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// ValidSegment reports whether s can be used as a single topic level:
// non-empty and free of separators and wildcards.
func ValidSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}
