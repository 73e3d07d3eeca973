package fusion

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Bwilkie91/camera/internal/models"
)

type lexicon map[string]struct{}

func newLexicon(words ...string) lexicon {
	l := make(lexicon, len(words))
	for _, w := range words {
		l[w] = struct{}{}
	}
	return l
}

// count returns how many lexicon entries occur in the transcript. Multi-word
// entries match as a phrase.
func (l lexicon) count(words map[string]struct{}, phrase string) int {
	n := 0
	for entry := range l {
		if l.matches(entry, words, phrase) {
			n++
		}
	}
	return n
}

func (l lexicon) matches(entry string, words map[string]struct{}, phrase string) bool {
	if strings.Contains(entry, " ") {
		return strings.Contains(" "+phrase+" ", " "+entry+" ")
	}
	_, ok := words[entry]
	return ok
}

// Keyword lexicons, built once.
var (
	threatWords = newLexicon("kill", "bomb", "gun", "weapon", "attack", "hurt", "destroy", "fire", "shoot", "stab",
		"threat", "threaten", "die", "dead", "run", "hide", "help", "emergency", "police")
	negativeWords = newLexicon("angry", "hate", "stupid", "wrong", "bad", "terrible", "awful", "no", "stop", "don't",
		"shut", "leave", "get out", "fight", "hit", "scream", "yell", "cry", "sad", "scared")
	positiveWords = newLexicon("happy", "good", "great", "yes", "thanks", "love", "nice", "ok", "okay", "please", "hello")
	stressWords   = newLexicon("help", "emergency", "hurry", "quick", "scared", "afraid", "panic", "anxious", "stress")

	// First matching set wins.
	emotionWords = []struct {
		words   lexicon
		emotion string
	}{
		{newLexicon("angry", "mad", "furious"), "angry"},
		{newLexicon("sad", "cry", "crying", "depressed"), "sad"},
		{newLexicon("happy", "joy", "glad", "love"), "happy"},
		{newLexicon("scared", "fear", "afraid", "panic"), "fear"},
		{newLexicon("calm", "quiet", "peaceful"), "calm"},
		{newLexicon("help", "emergency"), "distress"},
	}
)

const (
	maxTranscript = 2000
	maxKeywords   = 15
)

// DisabledAudio is reported when the audio modality is switched off.
func DisabledAudio() models.AudioAttributes {
	return models.AudioAttributes{
		Transcription: models.None,
		Sentiment:     models.None,
		Emotion:       models.None,
		Stress:        models.None,
		Background:    models.None,
		Keywords:      []string{},
	}
}

// AnalyzeAudio derives sentiment, stress, threat and anomaly heuristics
// from a transcript sample.
func AnalyzeAudio(a *models.Audio) models.AudioAttributes {
	out := models.AudioAttributes{
		Transcription: "None",
		Sentiment:     "neutral",
		Emotion:       "neutral",
		Stress:        "low",
		Background:    "silence",
		Keywords:      []string{},
	}
	if a == nil {
		return out
	}
	if a.LoudnessDB != nil {
		db := round1(*a.LoudnessDB)
		out.LoudnessDB = &db
	}

	transcript := strings.TrimSpace(a.Transcript)
	if transcript == "" || transcript == "None" {
		return out
	}
	out.Transcription = truncateRunes(transcript, maxTranscript)

	words := tokenize(transcript)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	phrase := strings.Join(words, " ")

	pos := positiveWords.count(set, phrase)
	neg := negativeWords.count(set, phrase)
	threat := threatWords.count(set, phrase)
	stress := stressWords.count(set, phrase)

	switch {
	case threat > 0:
		out.Sentiment = "threat"
	case neg > pos:
		out.Sentiment = "negative"
	case pos > neg:
		out.Sentiment = "positive"
	}

	for _, e := range emotionWords {
		if e.words.count(set, phrase) > 0 {
			out.Emotion = e.emotion
			break
		}
	}

	switch {
	case threat > 0 || stress >= 2:
		out.Stress = "high"
	case stress >= 1 || neg > 0:
		out.Stress = "medium"
	}

	out.ThreatScore = min(100, threat*30+stress*15)

	if a.LoudnessDB != nil {
		switch db := *a.LoudnessDB; {
		case db > -20:
			out.AnomalyScore = 0.5
		case db < -55 && len(words) > 5:
			out.AnomalyScore = 0.3
		}
	}
	if threat > 0 {
		out.AnomalyScore = math.Max(out.AnomalyScore, 0.7)
	}

	switch {
	case len(words) == 0:
		out.Background = "silence"
	case a.LoudnessDB != nil && *a.LoudnessDB < -50:
		out.Background = "quiet_speech"
	case a.LoudnessDB != nil && *a.LoudnessDB > -25:
		out.Background = "loud_speech_or_noise"
	default:
		out.Background = "speech"
	}

	if a.DurationSec != nil && *a.DurationSec > 0.1 && len(words) > 0 {
		rate := round1(float64(len(words)) / (*a.DurationSec / 60))
		out.SpeechRate = &rate
	}

	out.Keywords = keywords(set, phrase)
	return out
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// tokenize lowercases and strips trailing punctuation from each word.
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	words := fields[:0]
	for _, f := range fields {
		w := strings.Trim(f, ".,?!")
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func keywords(set map[string]struct{}, phrase string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, l := range []lexicon{threatWords, negativeWords, positiveWords, stressWords} {
		for entry := range l {
			if !seen[entry] && l.matches(entry, set, phrase) {
				seen[entry] = true
				found = append(found, entry)
			}
		}
	}
	slices.Sort(found)
	if len(found) > maxKeywords {
		found = found[:maxKeywords]
	}
	if found == nil {
		found = []string{}
	}
	return found
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
