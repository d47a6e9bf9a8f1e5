package satellite

import (
	log "log/slog"
	"strings"

	"hermes-text/pkg/hermes"
)

type State int

const (
	StateListening State = 0
	StateDisabled  State = -1
	StateEnabled   State = -2
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// Component is one protocol function of a site.
type Component interface {
	Scope() string
	State() State
	IsEnabled() bool
	// Handle reports whether the component acted on msg.
	Handle(msg hermes.Message) bool
}

// component is the state shared by every variant. Variants embed it and run
// admit before acting on a message.
type component struct {
	scope  string
	state  State
	site   *Site
	log    *log.Logger
	bypass []string
}

func newComponent(scope string, site *Site, bypass ...string) component {
	c := component{
		scope:  scope,
		site:   site,
		log:    site.log.With("scope", scope),
		bypass: bypass,
	}
	c.enable()
	return c
}

func (c *component) Scope() string   { return c.scope }
func (c *component) State() State    { return c.state }
func (c *component) IsEnabled() bool { return c.state != StateDisabled }

func (c *component) enable() {
	c.state = StateEnabled
	c.log.Debug("Component enabled")
}

func (c *component) disable() {
	c.state = StateDisabled
	c.log.Debug("Component disabled")
}

func (c *component) bypassed(topic string) bool {
	for _, f := range c.bypass {
		if hermes.MatchTopic(f, topic) {
			return true
		}
	}
	return false
}

func (c *component) owns(topic string) bool {
	return strings.HasPrefix(topic, "hermes/"+c.scope+"/")
}

// admit applies the shared admission rules. act reports whether the variant
// should handle msg; consumed reports that admit itself dealt with it, as
// for toggles and scoped messages dropped while disabled.
func (c *component) admit(msg hermes.Message) (act, consumed bool) {
	if c.bypassed(msg.Topic) {
		return false, false
	}
	if msg.SiteID != c.site.ID {
		return false, false
	}

	switch msg.Topic {
	case hermes.ToggleOnTopic(c.scope):
		c.enable()
		return false, true
	case hermes.ToggleOffTopic(c.scope):
		c.disable()
		return false, true
	}

	if c.state == StateDisabled {
		if !c.owns(msg.Topic) {
			return false, false
		}
		c.log.Debug("Dropped while disabled", "topic", msg.Topic)
		return false, true
	}
	return true, false
}
