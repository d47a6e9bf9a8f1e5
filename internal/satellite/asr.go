package satellite

import (
	"hermes-text/pkg/hermes"
)

// ASR replaces speech recognition: queued text is reported as captured
// whenever the platform starts listening.
type ASR struct {
	component
}

func newASR(site *Site) *ASR {
	return &ASR{component: newComponent(hermes.ScopeASR, site)}
}

func (a *ASR) Handle(msg hermes.Message) bool {
	act, consumed := a.admit(msg)
	if !act {
		return consumed
	}

	switch msg.Topic {
	case hermes.TopicStartListening:
		a.state = StateListening
		a.log.Debug("Listening")
		a.site.processInput()
		return true
	case hermes.TopicStopListening:
		a.state = StateEnabled
		return true
	}
	return false
}

func (a *ASR) ProcessText(text string) {
	a.site.publish(hermes.TopicTextCaptured, hermes.TextCaptured{
		Likelihood: 1,
		Seconds:    0,
		SessionID:  a.site.SessionID(),
		SiteID:     a.site.ID,
		Text:       text,
	})
}
