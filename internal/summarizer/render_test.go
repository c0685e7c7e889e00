package summarizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

func ptr(s string) *string { return &s }

func TestRender(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: 1, ChatID: 5, Sender: ptr("alice"), Text: ptr("hi"), Timestamp: at},
		{ID: 2, ChatID: 5, Sender: ptr("bob"), Text: ptr(models.NonTextSentinel), Timestamp: at.Add(time.Minute)},
		{ID: 3, ChatID: 5, Text: ptr("anyone?"), Timestamp: at.Add(2 * time.Minute)},
		{ID: 4, ChatID: 5, Sender: ptr("carol"), Text: ptr("   "), Timestamp: at.Add(3 * time.Minute)},
		{ID: 5, ChatID: 5, Sender: ptr("dave")},
		{ID: 6, ChatID: 5, Sender: ptr("alice"), Text: ptr("bye"), Timestamp: at.Add(time.Hour)},
	}

	c := Render(msgs)

	assert.Equal(t,
		"[2024-01-01 10:00:00] alice: hi\n\n"+
			"[2024-01-01 10:02:00] Unknown: anyone?\n\n"+
			"[2024-01-01 11:00:00] alice: bye",
		c.Text)
	assert.Equal(t, []models.MessageKey{{ID: 1, ChatID: 5}, {ID: 3, ChatID: 5}, {ID: 6, ChatID: 5}}, c.Covered)
	assert.Equal(t, 3, c.Skipped)
}

func TestRenderNothingToSay(t *testing.T) {
	c := Render([]models.Message{{ID: 1, Text: ptr(" " + models.NonTextSentinel + " ")}})
	assert.Empty(t, c.Text)
	assert.Empty(t, c.Covered)
	assert.Equal(t, 1, c.Skipped)
}

func TestRenderLineUsesUTC(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	m := &models.Message{Sender: ptr("ivan"), Text: ptr("привет"), Timestamp: time.Date(2024, 5, 1, 12, 30, 15, 0, msk)}
	assert.Equal(t, "[2024-05-01 09:30:15] ivan: привет", RenderLine(m))
}
