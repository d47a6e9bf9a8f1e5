package satellite

import (
	"hermes-text/pkg/hermes"
)

// AudioServer pretends to play audio. Playback requests are acknowledged at
// once whatever the component state, since the platform blocks on them.
type AudioServer struct {
	component
}

func newAudioServer(site *Site) *AudioServer {
	return &AudioServer{
		component: newComponent(hermes.ScopeAudioServer, site,
			"hermes/audioServer/+/playBytes/#",
			"hermes/audioServer/+/playFinished",
		),
	}
}

func (a *AudioServer) Handle(msg hermes.Message) bool {
	if a.bypassed(msg.Topic) {
		return a.handleAudio(msg)
	}
	_, consumed := a.admit(msg)
	return consumed
}

func (a *AudioServer) handleAudio(msg hermes.Message) bool {
	at, ok := hermes.ParseAudioTopic(msg.Topic)
	if !ok || at.SiteID != a.site.ID {
		return false
	}

	switch at.Action {
	case hermes.ActionPlayBytes:
		a.log.Debug("Fake playback", "request", at.RequestID, "bytes", len(msg.Payload))
		a.site.publish(hermes.PlayFinishedTopic(a.site.ID), hermes.PlayFinished{
			ID:        at.RequestID,
			SessionID: a.site.SessionID(),
			SiteID:    a.site.ID,
		})
	case hermes.ActionPlayFinished:
		a.log.Debug("Playback finished")
	}
	return true
}
