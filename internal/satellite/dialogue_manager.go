package satellite

import (
	"hermes-text/pkg/hermes"
)

// DialogueManager tracks the platform session. It is the only writer of the
// site session id.
type DialogueManager struct {
	component
}

func newDialogueManager(site *Site) *DialogueManager {
	return &DialogueManager{component: newComponent(hermes.ScopeDialogueManager, site)}
}

func (d *DialogueManager) Handle(msg hermes.Message) bool {
	act, consumed := d.admit(msg)
	if !act {
		return consumed
	}

	switch msg.Topic {
	case hermes.TopicSessionStarted:
		var started hermes.SessionStarted
		if err := msg.Decode(&started); err != nil {
			d.log.Warn("Malformed payload", "topic", msg.Topic, "err", err)
			return true
		}
		if started.SessionID == "" {
			d.log.Warn("Session started without id")
			return true
		}
		d.site.sessionID = started.SessionID
		d.log.Info("Session started", "session", started.SessionID)
	case hermes.TopicSessionEnded:
		d.log.Info("Session ended", "session", d.site.sessionID)
		d.site.sessionID = ""
	default:
		return false
	}
	return true
}
