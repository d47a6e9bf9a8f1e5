package hermes

import (
	"strings"
)

// Subscriptions lists the inbound topic filters a text satellite listens on.
func Subscriptions() []string {
	return []string{
		TopicStartListening,
		TopicStopListening,
		ToggleOnTopic(ScopeASR),
		ToggleOffTopic(ScopeASR),
		"hermes/audioServer/+/playBytes/#",
		"hermes/audioServer/+/playFinished",
		ToggleOnTopic(ScopeAudioServer),
		ToggleOffTopic(ScopeAudioServer),
		"hermes/dialogueManager/#",
		"hermes/hotword/#",
		"hermes/intent/#",
		"hermes/nlu/#",
		"hermes/tts/#",
	}
}

var ignoredFilters = []string{
	"hermes/intent/#",
	"hermes/nlu/#",
}

// IsIgnored reports topics the satellite receives but never acts on.
func IsIgnored(topic string) bool {
	for _, f := range ignoredFilters {
		if MatchTopic(f, topic) {
			return true
		}
	}
	return false
}

// MatchTopic reports whether topic matches an MQTT subscription filter.
// "+" matches exactly one level, a trailing "#" matches the parent level and
// everything below it. Wildcards never match a leading "$" level.
func MatchTopic(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	if strings.HasPrefix(ts[0], "$") && (fs[0] == "+" || fs[0] == "#") {
		return false
	}

	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

// AudioTopic is the structured form of hermes/audioServer/<siteId>/<action>[/<requestId>].
type AudioTopic struct {
	SiteID    string
	Action    string
	RequestID string
}

// ParseAudioTopic splits an audio server data topic. Scope-wide topics such as
// hermes/audioServer/toggleOn carry their site in the payload and are rejected.
func ParseAudioTopic(topic string) (AudioTopic, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "hermes" || parts[1] != ScopeAudioServer {
		return AudioTopic{}, false
	}
	if parts[2] == "" || parts[3] == "" {
		return AudioTopic{}, false
	}

	at := AudioTopic{
		SiteID: parts[2],
		Action: parts[3],
	}
	if len(parts) > 4 {
		at.RequestID = parts[4]
	}
	if at.Action == ActionPlayBytes && at.RequestID == "" {
		return AudioTopic{}, false
	}
	return at, true
}

// IsAudioData reports topics whose payload is raw audio rather than JSON.
func IsAudioData(topic string) bool {
	at, ok := ParseAudioTopic(topic)
	return ok && at.Action == ActionPlayBytes
}
