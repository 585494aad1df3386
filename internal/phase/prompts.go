package phase

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

const jsonOnly = "Respond with a single JSON document and nothing else."

const colorSystem = "You are a colorist analysing footage for a storyboard team. " + jsonOnly

const characterSystem = "You are a casting director building a visual character bible. " + jsonOnly

const sceneSystem = "You are a storyboard artist writing image and video generation prompts. " + jsonOnly

const scriptSystem = "You transcribe and structure the spoken and on-screen story of a video as a screenplay. " + jsonOnly

func rangeHint(opts model.Options) string {
	if opts.Range == nil {
		return ""
	}
	return fmt.Sprintf("Only consider the video between %ds and %ds.\n", opts.Range.Start, opts.Range.End)
}

func colorPrompt(opts model.Options) string {
	var b strings.Builder
	b.WriteString("Analyse the color grade of the attached video.\n")
	b.WriteString(rangeHint(opts))
	b.WriteString(`Return {"dominantColors":[{"hex","name","mood":[],"temperature"}],` +
		`"colorTemperature":{"category":"warm|neutral|cool","kelvin"},"contrast","shadows","highlights",` +
		`"filmStock","mood":[],"grain","postProcessing","confidence":0..1}.`)
	return b.String()
}

func mergedPrompt(opts model.Options) string {
	var b strings.Builder
	b.WriteString("Analyse the attached video in one pass: color grade, recurring characters and the setting.\n")
	b.WriteString(rangeHint(opts))
	b.WriteString(`Return {"colorProfile":{...color profile fields...},` +
		`"characters":[{"name","gender","age","build","face","hair","facialHair","distinctiveMarks","outfit","firstAppearance"}],` +
		`"background":"one paragraph describing the world"}.`)
	return b.String()
}

func scriptPrompt(opts model.Options) string {
	return "Extract the story of the attached video as a screenplay with scene headings, action and dialogue.\n" +
		rangeHint(opts) +
		`Return {"script":"..."}.`
}

func characterPrompt(opts model.Options, script string) string {
	var b strings.Builder
	b.WriteString("List every recurring character with a stable visual description so they can be drawn consistently.\n")
	if script != "" {
		b.WriteString("Source script:\n")
		b.WriteString(script)
		b.WriteString("\n")
	} else {
		b.WriteString(rangeHint(opts))
	}
	b.WriteString(`Return {"characters":[{"name","gender","age","build","face","hair","facialHair","distinctiveMarks","outfit","firstAppearance"}],` +
		`"background":"one paragraph describing the world"}.`)
	return b.String()
}

func scenePrompt(in BatchInput) string {
	opts := in.Options
	var b strings.Builder
	fmt.Fprintf(&b, "Write scenes %d to %d of %d (batch %d of %d).\n",
		in.StartSequence, in.StartSequence+in.Count-1, opts.SceneCount, in.Index+1, in.Total)
	if opts.Style != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", opts.Style)
	}
	b.WriteString(rangeHint(opts))

	if in.Profile != nil {
		p := in.Profile
		hexes := make([]string, 0, len(p.DominantColors))
		for _, c := range p.DominantColors {
			hexes = append(hexes, c.Hex)
		}
		fmt.Fprintf(&b, "Color grade: %s palette, %s (%dK), %s contrast, film stock %s, mood %s.\n",
			strings.Join(hexes, " "), p.Temperature.Category, p.Temperature.Kelvin, p.Contrast,
			p.FilmStock, strings.Join(p.Mood, ", "))
	}
	if in.Background != "" {
		fmt.Fprintf(&b, "World: %s\n", in.Background)
	}
	if len(in.Registry) > 0 {
		b.WriteString("Characters (reuse these descriptions verbatim, never rename them):\n")
		for _, name := range in.Registry.Names() {
			fmt.Fprintf(&b, "- %s: %s\n", name, in.Registry[name].Description())
		}
	}
	if in.Script != "" {
		b.WriteString("Script:\n")
		b.WriteString(in.Script)
		b.WriteString("\n")
	}
	if len(in.PreviousTail) > 0 {
		b.WriteString("Continue directly after these scenes:\n")
		for _, s := range in.PreviousTail {
			fmt.Fprintf(&b, "%d. %s\n", s.Sequence, s.Description)
		}
	}
	if opts.Voice.Enabled {
		fmt.Fprintf(&b, "Add a voiceover line per scene in %s", orDefault(opts.Voice.Language, "English"))
		if opts.Voice.Tone != "" {
			fmt.Fprintf(&b, " with a %s tone", opts.Voice.Tone)
		}
		b.WriteString(".\n")
	}
	b.WriteString(`Return {"scenes":[{"sequence","mediaType":"image|video","description","primaryObject","characterRef",` +
		`"style":{"genre","era","reference"},"visual":{"setting","action","expression","palette"},` +
		`"lighting":{"source","quality","direction"},"composition":{"shotType","angle","framing"},` +
		`"technical":{"aspectRatio","lens","duration"},"prompt","negativePrompt","voiceover","variations":{"<name>":"..."}}],` +
		`"newCharacters":[...only characters not listed above...]}.`)
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
