package model

type TemperatureCategory string

const (
	TemperatureWarm    TemperatureCategory = "warm"
	TemperatureNeutral TemperatureCategory = "neutral"
	TemperatureCool    TemperatureCategory = "cool"
)

type DominantColor struct {
	Hex         string   `json:"hex"`
	Name        string   `json:"name"`
	Mood        []string `json:"mood"`
	Temperature string   `json:"temperature"`
}

type ColorTemperature struct {
	Category TemperatureCategory `json:"category"`
	Kelvin   int                 `json:"kelvin"`
}

// ColorProfile is produced once per job and fed unchanged into every scene batch.
type ColorProfile struct {
	DominantColors []DominantColor  `json:"dominantColors"`
	Temperature    ColorTemperature `json:"colorTemperature"`
	Contrast       string           `json:"contrast"`
	Shadows        string           `json:"shadows"`
	Highlights     string           `json:"highlights"`
	FilmStock      string           `json:"filmStock"`
	Mood           []string         `json:"mood"`
	Grain          string           `json:"grain"`
	PostProcessing string           `json:"postProcessing"`
	Confidence     float64          `json:"confidence"`
}
