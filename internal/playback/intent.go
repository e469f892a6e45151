package playback

import (
	"net/url"
	"strconv"
)

// FullscreenIntent is the navigation-time request carried into a session.
type FullscreenIntent struct {
	Autoplay   bool `json:"autoplay"`
	Fullscreen bool `json:"fullscreen"`
}

// ParseIntent reads autoplay and fullscreen flags from query parameters, as
// produced by a "watch now" link. Missing or malformed values are false.
func ParseIntent(q url.Values) FullscreenIntent {
	return FullscreenIntent{
		Autoplay:   parseFlag(q.Get("autoplay")),
		Fullscreen: parseFlag(q.Get("fullscreen")),
	}
}

// Values encodes the intent as query parameters.
func (i FullscreenIntent) Values() url.Values {
	q := url.Values{}
	if i.Autoplay {
		q.Set("autoplay", "true")
	}
	if i.Fullscreen {
		q.Set("fullscreen", "true")
	}
	return q
}

func parseFlag(s string) bool {
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
