package gemini

// Model describes one of the offered model presets.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	SupportsAudio bool   `json:"supports_audio"`
	ContextWindow string `json:"context_window"`
}

var presets = []Model{
	{
		ID:            "gemini-2.5-flash",
		Name:          "Gemini 2.5 Flash",
		Description:   "Best price/performance, audio support, thinking capabilities",
		SupportsAudio: true,
		ContextWindow: "1M tokens",
	},
	{
		ID:            "gemini-2.5-pro",
		Name:          "Gemini 2.5 Pro",
		Description:   "Most powerful model for complex reasoning and analysis",
		SupportsAudio: true,
		ContextWindow: "2M tokens",
	},
	{
		ID:            "gemini-2.0-flash",
		Name:          "Gemini 2.0 Flash",
		Description:   "Fast with native tool use and improved capabilities",
		SupportsAudio: true,
		ContextWindow: "1M tokens",
	},
	{
		ID:            "gemini-1.5-pro",
		Name:          "Gemini 1.5 Pro (Legacy)",
		Description:   "Available only for existing projects with prior usage",
		SupportsAudio: true,
		ContextWindow: "2M tokens",
	},
}

// Models returns the model presets offered to the user.
func Models() []Model {
	out := make([]Model, len(presets))
	copy(out, presets)
	return out
}

// LookupModel returns the preset with the given id.
func LookupModel(id string) (Model, bool) {
	for _, m := range presets {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
