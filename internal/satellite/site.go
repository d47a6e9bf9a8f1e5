package satellite

import (
	log "log/slog"
	"strings"
	"unicode"

	"hermes-text/pkg/hermes"
)

// Publisher sends one JSON-encoded message to the bus.
type Publisher interface {
	Publish(topic string, v any) error
}

// Site is one sender identity acting as a satellite. It owns its components
// and is only ever touched from the dispatcher's goroutine.
type Site struct {
	ID   string
	Name string

	sessionID string
	input     []string

	log     *log.Logger
	pub     Publisher
	onReply func(site *Site, text string)

	WakeWord        *WakeWord
	ASR             *ASR
	AudioServer     *AudioServer
	DialogueManager *DialogueManager
	TTS             *TTS
	Feedback        *Feedback

	components []Component
}

func newSite(logger *log.Logger, pub Publisher, name, id, wakeword string, onReply func(*Site, string)) *Site {
	s := &Site{
		ID:      id,
		Name:    name,
		log:     logger.With("site", id),
		pub:     pub,
		onReply: onReply,
	}

	s.WakeWord = newWakeWord(s, wakeword)
	s.ASR = newASR(s)
	s.AudioServer = newAudioServer(s)
	s.DialogueManager = newDialogueManager(s)
	s.TTS = newTTS(s)
	s.Feedback = newFeedback(s)

	s.components = []Component{
		s.WakeWord,
		s.ASR,
		s.AudioServer,
		s.DialogueManager,
		s.TTS,
		s.Feedback,
	}

	s.Feedback.announce()
	return s
}

func (s *Site) SessionID() string { return s.sessionID }

// InSession reports whether a dialogue session is open for the site.
func (s *Site) InSession() bool { return s.sessionID != "" }

func (s *Site) Pending() int { return len(s.input) }

func (s *Site) Components() []Component { return s.components }

// Enqueue normalizes and queues one line of input. It reports false when
// nothing is left after normalization.
func (s *Site) Enqueue(text string) bool {
	text = Normalize(text)
	if text == "" {
		return false
	}
	s.input = append(s.input, text)
	return true
}

func (s *Site) dequeue() (string, bool) {
	if len(s.input) == 0 {
		return "", false
	}
	text := s.input[0]
	s.input = s.input[1:]
	return text, true
}

func (s *Site) processInput() {
	text, ok := s.dequeue()
	if !ok {
		s.log.Debug("Nothing queued to capture")
		return
	}
	s.ASR.ProcessText(text)
}

func (s *Site) reply(text string) {
	s.log.Info("Reply", "recipient", s.Name, "text", text)
	if s.onReply != nil {
		s.onReply(s, text)
	}
}

// handle offers msg to every component and reports whether any acted on it.
func (s *Site) handle(msg hermes.Message) bool {
	acted := false
	for _, c := range s.components {
		if c.Handle(msg) {
			acted = true
		}
	}
	return acted
}

func (s *Site) publish(topic string, v any) {
	if err := s.pub.Publish(topic, v); err != nil {
		s.log.Error("Failed to publish", "topic", topic, "err", err)
	}
}

// Normalize strips trailing characters that are neither letters, digits nor
// underscores, so "is it hot outside?" becomes "is it hot outside".
func Normalize(text string) string {
	return strings.TrimRightFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}
