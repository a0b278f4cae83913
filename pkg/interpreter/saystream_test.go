package interpreter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	chunks    []string
	completed []string
}

func (o *recordingObserver) OnSayChunk(target, chunk string) {
	o.chunks = append(o.chunks, chunk)
}
func (o *recordingObserver) OnSayComplete(target string) {
	o.completed = append(o.completed, target)
}

func TestSayStreamDetectorEmitsIncrementalContent(t *testing.T) {
	d := NewSayStreamDetector()
	obs := &recordingObserver{}

	for _, chunk := range []string{
		`await self.Say("user", "`,
		"Hello ",
		"there",
		`")`,
	} {
		d.Feed(chunk, obs)
	}

	require.NotEmpty(t, obs.completed)
	assert.Equal(t, "user", obs.completed[0])
	assert.Equal(t, "Hello there", strings.Join(obs.chunks, ""))
}

func TestSayStreamDetectorIgnoresNonHumanTargets(t *testing.T) {
	d := NewSayStreamDetector()
	obs := &recordingObserver{}

	d.Feed(`await self.Say("OtherAgent", "internal note")`, obs)

	assert.Empty(t, obs.chunks)
	assert.Empty(t, obs.completed)
}
