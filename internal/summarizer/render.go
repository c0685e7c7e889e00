package summarizer

import (
	"strings"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	unknownSender   = "Unknown"
)

// Corpus is the rendered text of a set of messages together with the keys
// of the messages that contributed a line.
type Corpus struct {
	Text    string
	Covered []models.MessageKey
	Skipped int // messages without text
}

// Render formats messages as "[timestamp] sender: text" lines separated by
// blank lines, in the order given. Messages without text are skipped.
func Render(msgs []models.Message) Corpus {
	var (
		b strings.Builder
		c Corpus
	)
	for i := range msgs {
		m := &msgs[i]
		if !m.HasText() {
			c.Skipped++
			continue
		}
		if b.Len() > 0 {
			b.WriteString(paragraphSep)
		}
		b.WriteString(RenderLine(m))
		c.Covered = append(c.Covered, m.Key())
	}
	c.Text = b.String()
	return c
}

// RenderLine formats a single message.
func RenderLine(m *models.Message) string {
	sender := unknownSender
	if m.Sender != nil && strings.TrimSpace(*m.Sender) != "" {
		sender = *m.Sender
	}
	text := ""
	if m.Text != nil {
		text = *m.Text
	}
	return "[" + m.Timestamp.UTC().Format(timestampLayout) + "] " + sender + ": " + text
}
