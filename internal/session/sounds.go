package session

// Sound is an entry of the ambient-sound catalog.
type Sound struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	Category string `json:"category"`
}

// catalog is ordered for display.
var catalog = []Sound{
	{ID: "cafe", Name: "☕ Cafe", Emoji: "☕", Category: "focus"},
	{ID: "rain", Name: "🌧️ Rain", Emoji: "🌧️", Category: "focus"},
	{ID: "ocean", Name: "🌊 Ocean", Emoji: "🌊", Category: "focus"},
	{ID: "forest", Name: "🌲 Forest", Emoji: "🌲", Category: "focus"},
	{ID: "fireplace", Name: "🔥 Fireplace", Emoji: "🔥", Category: "relax"},
	{ID: "lofi", Name: "🎵 Lo-fi", Emoji: "🎵", Category: "music"},
	{ID: "jazz", Name: "🎹 Jazz", Emoji: "🎹", Category: "music"},
	{ID: "whitenoise", Name: "⚪ White Noise", Emoji: "⚪", Category: "focus"},
}

// Sounds returns a copy of the catalog.
func Sounds() []Sound {
	return append([]Sound(nil), catalog...)
}

// LookupSound finds a sound by id.
func LookupSound(id string) (Sound, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Sound{}, false
}
