package satellite

import (
	log "log/slog"
	"sort"

	"github.com/samber/lo"

	"hermes-text/pkg/hermes"
)

// ReplyFunc receives text the platform spoke to a sender.
type ReplyFunc func(recipient, text string)

// Dispatcher owns the site registry and routes bus messages to sites.
// It is not safe for concurrent use; callers serialize Push and OnMessage.
type Dispatcher struct {
	log      *log.Logger
	pub      Publisher
	wakeword string
	sites    map[string]*Site
	replies  []ReplyFunc
}

func NewDispatcher(logger *log.Logger, pub Publisher, wakeword string) *Dispatcher {
	return &Dispatcher{
		log:      logger,
		pub:      pub,
		wakeword: wakeword,
		sites:    make(map[string]*Site),
	}
}

func (d *Dispatcher) Subscribe(fn ReplyFunc) {
	d.replies = append(d.replies, fn)
}

// Site finds the site for name, creating it on first contact.
func (d *Dispatcher) Site(name string) (*Site, error) {
	id, err := DeriveID(name)
	if err != nil {
		return nil, err
	}
	if s, ok := d.sites[id]; ok {
		return s, nil
	}

	s := newSite(d.log, d.pub, name, id, d.wakeword, d.emit)
	d.sites[id] = s
	d.log.Info("New site", "site", id, "name", name)
	return s, nil
}

func (d *Dispatcher) Lookup(id string) (*Site, bool) {
	s, ok := d.sites[id]
	return s, ok
}

// Sites returns the known sites ordered by id.
func (d *Dispatcher) Sites() []*Site {
	ids := lo.Keys(d.sites)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) *Site { return d.sites[id] })
}

// Push queues one line of text from sender and, when no session is open,
// wakes the platform up for it.
func (d *Dispatcher) Push(sender, text string) error {
	s, err := d.Site(sender)
	if err != nil {
		return err
	}

	if !s.Enqueue(text) {
		d.log.Debug("Empty input dropped", "site", s.ID)
		return nil
	}

	if !s.InSession() && s.WakeWord.IsEnabled() {
		s.WakeWord.Trigger()
	}
	return nil
}

// OnMessage routes one inbound bus message. Nothing here is fatal: bad or
// foreign messages are logged and dropped.
func (d *Dispatcher) OnMessage(topic string, payload []byte) {
	if hermes.IsIgnored(topic) {
		d.log.Debug("Ignored", "topic", topic)
		return
	}

	var msg hermes.Message
	if at, ok := hermes.ParseAudioTopic(topic); ok {
		msg = hermes.Message{Topic: topic, SiteID: at.SiteID, Payload: payload}
	} else {
		m, err := hermes.ParseSiteMessage(topic, payload)
		if err != nil {
			d.log.Warn("Malformed message", "topic", topic, "err", err)
			return
		}
		msg = m
	}

	s, ok := d.sites[msg.SiteID]
	if !ok {
		d.log.Debug("Message for unknown site", "topic", topic, "site", msg.SiteID)
		return
	}
	if !s.handle(msg) {
		d.log.Debug("Ignored", "topic", topic, "site", s.ID)
	}
}

func (d *Dispatcher) emit(s *Site, text string) {
	for _, fn := range d.replies {
		fn(s.Name, text)
	}
}
