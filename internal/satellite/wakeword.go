package satellite

import (
	"hermes-text/internal/version"
	"hermes-text/pkg/hermes"
)

const (
	wakewordSensitivity = 1.0
	wakewordModelType   = "universal"
)

// WakeWord stands in for a hotword detector. Text input never contains the
// wake word, so detection is triggered explicitly by the site.
type WakeWord struct {
	component
	name string
}

func newWakeWord(site *Site, name string) *WakeWord {
	return &WakeWord{
		component: newComponent(hermes.ScopeHotword, site),
		name:      name,
	}
}

func (w *WakeWord) Handle(msg hermes.Message) bool {
	// Only toggles apply; our own detected messages loop back here too.
	_, consumed := w.admit(msg)
	return consumed
}

func (w *WakeWord) Trigger() {
	w.site.publish(hermes.HotwordDetectedTopic(w.name), hermes.HotwordDetected{
		CurrentSensitivity: wakewordSensitivity,
		ModelID:            version.Name,
		ModelType:          wakewordModelType,
		ModelVersion:       version.String(),
		SiteID:             w.site.ID,
	})
}
