package satellite

import (
	"hermes-text/pkg/hermes"
)

// Feedback switches off the platform's feedback sounds for a new site. It
// never reacts to inbound messages.
type Feedback struct {
	site *Site
}

func newFeedback(site *Site) *Feedback {
	return &Feedback{site: site}
}

func (f *Feedback) Scope() string                  { return hermes.ScopeFeedback }
func (f *Feedback) State() State                   { return StateEnabled }
func (f *Feedback) IsEnabled() bool                { return true }
func (f *Feedback) Handle(msg hermes.Message) bool { return false }

func (f *Feedback) announce() {
	f.site.publish(hermes.TopicFeedbackSoundOff, hermes.Toggle{SiteID: f.site.ID})
}
