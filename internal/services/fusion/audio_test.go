package fusion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/Bwilkie91/camera/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestAnalyzeAudio_Empty(t *testing.T) {
	for _, a := range []*models.Audio{nil, {Transcript: ""}, {Transcript: "None"}} {
		out := AnalyzeAudio(a)
		assert.Equal(t, "None", out.Transcription)
		assert.Equal(t, "neutral", out.Sentiment)
		assert.Equal(t, "low", out.Stress)
		assert.Equal(t, 0, out.ThreatScore)
		assert.Equal(t, "silence", out.Background)
		assert.Empty(t, out.Keywords)
	}
}

func TestAnalyzeAudio_Threat(t *testing.T) {
	out := AnalyzeAudio(&models.Audio{
		Transcript:  "Help! He has a GUN.",
		LoudnessDB:  ptr(-18.04),
		DurationSec: ptr(3),
	})

	assert.Equal(t, "threat", out.Sentiment)
	assert.Equal(t, "distress", out.Emotion)
	assert.Equal(t, "high", out.Stress)
	// help and gun are threat words, help is also a stress word
	assert.Equal(t, 2*30+1*15, out.ThreatScore)
	assert.Equal(t, 0.7, out.AnomalyScore)
	assert.Equal(t, "loud_speech_or_noise", out.Background)
	assert.Equal(t, -18.0, *out.LoudnessDB)
	assert.Equal(t, 100.0, *out.SpeechRate)
	assert.Equal(t, []string{"gun", "help"}, out.Keywords)
}

func TestAnalyzeAudio_Sentiment(t *testing.T) {
	tests := []struct {
		transcript string
		sentiment  string
		stress     string
	}{
		{"hello thanks that was great", "positive", "low"},
		{"no stop that is wrong", "negative", "medium"},
		{"the weather today", "neutral", "low"},
		{"please get out now", "neutral", "medium"},
		{"hurry quick", "neutral", "high"},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			out := AnalyzeAudio(&models.Audio{Transcript: tt.transcript})
			assert.Equal(t, tt.sentiment, out.Sentiment)
			assert.Equal(t, tt.stress, out.Stress)
			assert.Equal(t, "speech", out.Background)
			assert.Nil(t, out.SpeechRate)
		})
	}
}

func TestAnalyzeAudio_QuietAnomaly(t *testing.T) {
	out := AnalyzeAudio(&models.Audio{
		Transcript: "one two three four five six",
		LoudnessDB: ptr(-60),
	})
	assert.Equal(t, 0.3, out.AnomalyScore)
	assert.Equal(t, "quiet_speech", out.Background)
}

func TestAnalyzeAudio_ThreatCapped(t *testing.T) {
	out := AnalyzeAudio(&models.Audio{Transcript: "kill bomb gun weapon attack"})
	assert.Equal(t, 100, out.ThreatScore)
}

func TestAnalyzeAudio_LongTranscript(t *testing.T) {
	transcript := strings.Repeat("a", maxTranscript-1) + "é and more words, help"
	out := AnalyzeAudio(&models.Audio{Transcript: transcript})

	assert.True(t, utf8.ValidString(out.Transcription))
	assert.Equal(t, maxTranscript, utf8.RuneCountInString(out.Transcription))
	assert.True(t, strings.HasSuffix(out.Transcription, "é"))
	// words past the cut still count
	assert.Equal(t, "threat", out.Sentiment)
	assert.Contains(t, out.Keywords, "help")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "", truncateRunes("héllo", 0))
}
