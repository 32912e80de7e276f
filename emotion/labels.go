// Package emotion maps model-native emotion labels onto the fixed label set
// exposed to clients.
package emotion

import "strings"

type Label string

const (
	Angry    Label = "angry"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Happy    Label = "happy"
	Neutral  Label = "neutral"
	Sad      Label = "sad"
	Surprise Label = "surprise"
)

// Labels is the closed output vocabulary, in canonical order.
var Labels = []Label{Angry, Disgust, Fear, Happy, Neutral, Sad, Surprise}

var synonyms = map[string]Label{
	"angry":     Angry,
	"anger":     Angry,
	"ang":       Angry,
	"happy":     Happy,
	"happiness": Happy,
	"joy":       Happy,
	"hap":       Happy,
	"neutral":   Neutral,
	"neu":       Neutral,
	"sad":       Sad,
	"sadness":   Sad,
	"fear":      Fear,
	"fearful":   Fear,
	"disgust":   Disgust,
	"disgusted": Disgust,
	"dis":       Disgust,
	"surprise":  Surprise,
	"surprised": Surprise,
	"sur":       Surprise,
	// 8th class of the Odyssey models, kept inside the 7-label set.
	"contempt": Disgust,
}

var separators = strings.NewReplacer("_", " ", "-", " ")

// NormalizeLabel returns the canonical label for a model-native label string.
func NormalizeLabel(raw string) (Label, bool) {
	key := strings.Join(strings.Fields(separators.Replace(strings.ToLower(raw))), " ")
	l, ok := synonyms[key]
	return l, ok
}

func (l Label) index() int {
	for i, c := range Labels {
		if c == l {
			return i
		}
	}
	return len(Labels)
}
