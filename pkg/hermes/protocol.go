package hermes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Component scopes. Each one owns the hermes/<scope>/... topic namespace.
const (
	ScopeASR             = "asr"
	ScopeAudioServer     = "audioServer"
	ScopeDialogueManager = "dialogueManager"
	ScopeFeedback        = "feedback"
	ScopeHotword         = "hotword"
	ScopeTTS             = "tts"
)

const (
	TopicStartListening   = "hermes/asr/startListening"
	TopicStopListening    = "hermes/asr/stopListening"
	TopicTextCaptured     = "hermes/asr/textCaptured"
	TopicSessionStarted   = "hermes/dialogueManager/sessionStarted"
	TopicSessionEnded     = "hermes/dialogueManager/sessionEnded"
	TopicSay              = "hermes/tts/say"
	TopicFeedbackSoundOff = "hermes/feedback/sound/toggleOff"
)

const (
	ActionPlayBytes    = "playBytes"
	ActionPlayFinished = "playFinished"
)

var (
	ErrEmptyPayload  = errors.New("hermes: empty payload")
	ErrMissingSiteID = errors.New("hermes: missing siteId")
)

func ToggleOnTopic(scope string) string {
	return "hermes/" + scope + "/toggleOn"
}

func ToggleOffTopic(scope string) string {
	return "hermes/" + scope + "/toggleOff"
}

func HotwordDetectedTopic(wakeword string) string {
	return fmt.Sprintf("hermes/hotword/%s/detected", wakeword)
}

func PlayBytesTopic(siteID, requestID string) string {
	return strings.Join([]string{"hermes", ScopeAudioServer, siteID, ActionPlayBytes, requestID}, "/")
}

func PlayFinishedTopic(siteID string) string {
	return strings.Join([]string{"hermes", ScopeAudioServer, siteID, ActionPlayFinished}, "/")
}

// Message is one inbound bus message already attributed to a site.
type Message struct {
	Topic   string
	SiteID  string
	Payload []byte
}

func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Topic, err)
	}
	return nil
}

// ParseSiteMessage reads the siteId field every non-audio payload carries.
func ParseSiteMessage(topic string, payload []byte) (Message, error) {
	msg := Message{Topic: topic, Payload: payload}

	var sm SiteMessage
	if err := msg.Decode(&sm); err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(sm.SiteID) == "" {
		return Message{}, fmt.Errorf("%w: %s", ErrMissingSiteID, topic)
	}

	msg.SiteID = sm.SiteID
	return msg, nil
}

type SiteMessage struct {
	SiteID string `json:"siteId"`
}

type HotwordDetected struct {
	CurrentSensitivity float64 `json:"currentSensitivity"`
	ModelID            string  `json:"modelId"`
	ModelType          string  `json:"modelType"`
	ModelVersion       string  `json:"modelVersion"`
	SiteID             string  `json:"siteId"`
}

type TextCaptured struct {
	Likelihood float64 `json:"likelihood"`
	Seconds    float64 `json:"seconds"`
	SessionID  string  `json:"sessionId,omitempty"`
	SiteID     string  `json:"siteId"`
	Text       string  `json:"text"`
}

type PlayFinished struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	SiteID    string `json:"siteId"`
}

type SessionStarted struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
}

type SessionEnded struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
}

type Say struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Lang      string `json:"lang,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	SiteID    string `json:"siteId"`
}

// Toggle is the payload of every hermes/<scope>/toggleOn|toggleOff message.
type Toggle struct {
	SiteID string `json:"siteId"`
}
