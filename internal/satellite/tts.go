package satellite

import (
	"hermes-text/pkg/hermes"
)

// TTS turns spoken replies back into text for the caller.
type TTS struct {
	component
}

func newTTS(site *Site) *TTS {
	return &TTS{component: newComponent(hermes.ScopeTTS, site)}
}

func (t *TTS) Handle(msg hermes.Message) bool {
	act, consumed := t.admit(msg)
	if !act {
		return consumed
	}
	if msg.Topic != hermes.TopicSay {
		return false
	}

	var say hermes.Say
	if err := msg.Decode(&say); err != nil {
		t.log.Warn("Malformed payload", "topic", msg.Topic, "err", err)
		return true
	}
	t.site.reply(say.Text)
	return true
}
