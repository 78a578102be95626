package imagegen

import "fmt"

// Band is the coarse "how unusual was it" classification that selects a
// banner image.
type Band string

const (
	BandHot     Band = "hot"
	BandTypical Band = "typical"
	BandCold    Band = "cold"
)

// Bands lists every band in display order.
var Bands = []Band{BandHot, BandTypical, BandCold}

// BandThreshold is the distance from the historical mean, in °C, beyond
// which a day counts as unusually hot or cold.
const BandThreshold = 3.0

// BandFor classifies a difference from the historical mean.
func BandFor(diff float64) Band {
	switch {
	case diff > BandThreshold:
		return BandHot
	case diff < -BandThreshold:
		return BandCold
	default:
		return BandTypical
	}
}

func ParseBand(s string) (Band, error) {
	for _, b := range Bands {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown band %q", s)
}

const basePrompt = "Wide cinematic landscape photograph of a city skyline along a river, " +
	"no people, no text, no lettering, soft natural light. "

var bandPrompts = map[Band]string{
	BandHot:     "A sweltering summer afternoon, heat haze shimmering over the rooftops, bleached sky, warm orange and amber tones.",
	BandTypical: "An ordinary mild day, light scattered clouds, balanced neutral colours, calm and unremarkable.",
	BandCold:    "A bitterly cold morning, frost on the riverbanks, breath-like mist over the water, pale blue and steel grey tones.",
}

// Prompt returns the image generation prompt for a band.
func (b Band) Prompt() string {
	return basePrompt + bandPrompts[b]
}
