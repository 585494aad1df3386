package model

// Phase names used in log entries, progress frames and phase cache keys.
const (
	PhaseColorProfile = "colorProfile"
	PhaseAnalysis     = "analysis"
	PhaseScript       = "script"
	PhaseCharacters   = "characters"
	PhaseScenes       = "scenes"
)
