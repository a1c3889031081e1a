package translator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
	"github.com/MimeLyc/scene-sub-translator/internal/validator"
)

// BuildPrompt renders the request for a batch. A nil context leaves the
// context section out, which keeps truncated retries small.
func BuildPrompt(settings Settings, sceneNumber, batchNumber int, lines []subtitle.Line, context map[string]any) scene.Prompt {
	return scene.Prompt{
		System: buildSystemPrompt(settings),
		User:   buildUserPrompt(sceneNumber, batchNumber, lines, context),
	}
}

func buildSystemPrompt(settings Settings) string {
	var prompt strings.Builder

	source := settings.SourceLanguage
	if source == "" {
		source = "the source language"
	}
	prompt.WriteString("You are a professional subtitle translator. Translate subtitles from " + source + " to " + settings.TargetLanguage + ".\n\n")

	if settings.Instructions != "" {
		prompt.WriteString("=== INSTRUCTIONS ===\n")
		prompt.WriteString(strings.TrimSpace(settings.Instructions) + "\n\n")
	}

	prompt.WriteString("=== TRANSLATION GUIDELINES ===\n")
	prompt.WriteString("1. Translate every numbered line and keep its number\n")
	prompt.WriteString("2. Keep line breaks inside a line where they help reading\n")
	prompt.WriteString("3. Use the context to keep names and tone consistent\n")
	prompt.WriteString("4. Keep subtitle length appropriate for screen reading\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("For each line reply with:\n#<number>\n" + originalMarker + "\n<original text>\n" + translationMarker + "\n<translated text>\n\n")
	prompt.WriteString("After the lines, add <summary>one or two sentences on this batch</summary> and <scene>a short summary of the scene so far</scene>.\n")
	prompt.WriteString("Optionally add <synopsis>, <characters> and <names> when you learn something new.\n")

	return prompt.String()
}

func buildUserPrompt(sceneNumber, batchNumber int, lines []subtitle.Line, context map[string]any) string {
	var prompt strings.Builder

	if len(context) > 0 {
		prompt.WriteString("=== CONTEXT ===\n")
		if v, ok := context[ContextSynopsis].(string); ok {
			prompt.WriteString(fmt.Sprintf("Synopsis: %s\n", v))
		}
		if v, ok := context[ContextCharacters].([]string); ok && len(v) > 0 {
			prompt.WriteString(fmt.Sprintf("Characters: %s\n", strings.Join(v, ", ")))
		}
		if v, ok := context[ContextNames].([]string); ok && len(v) > 0 {
			prompt.WriteString(fmt.Sprintf("Names: %s\n", strings.Join(v, ", ")))
		}
		if v, ok := context[ContextHistory].([]string); ok && len(v) > 0 {
			prompt.WriteString("Previously:\n")
			for _, s := range v {
				prompt.WriteString("- " + s + "\n")
			}
		}
		if v, ok := context[ContextScene].(string); ok {
			prompt.WriteString(fmt.Sprintf("Current scene: %s\n", v))
		}
		if v, ok := context[ContextPreviousBatch].([]string); ok && len(v) > 0 {
			prompt.WriteString("Last lines of the previous batch:\n")
			for _, s := range v {
				prompt.WriteString("> " + strings.ReplaceAll(s, "\n", " ") + "\n")
			}
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString(fmt.Sprintf("=== SCENE %d BATCH %d ===\n", sceneNumber, batchNumber))
	for _, line := range lines {
		prompt.WriteString(fmt.Sprintf("#%d\n%s\n%s\n%s\n\n", line.Number, originalMarker, line.Text, translationMarker))
	}

	return prompt.String()
}

// RetryInstructions describes what went wrong with the previous reply.
func RetryInstructions(errs []error) string {
	var problems []string
	for _, err := range errs {
		var verr *validator.Error
		if !errors.As(err, &verr) {
			continue
		}
		switch verr.Kind {
		case validator.NoTranslation:
			problems = append(problems, "No translated lines could be found. Use the #<number> and "+translationMarker+" format for every line.")
		case validator.UnmatchedLines:
			problems = append(problems, "Some translations had no valid line number. Keep the original #<number> for every line.")
		case validator.EmptyLines:
			problems = append(problems, fmt.Sprintf("Lines %s came back blank.", joinNumbers(verr.Lines)))
		case validator.LineTooLong:
			problems = append(problems, fmt.Sprintf("Lines %s are too long. %s", joinNumbers(verr.Lines), verr.Message))
		case validator.TooManyNewlines:
			problems = append(problems, fmt.Sprintf("Lines %s have too many line breaks. %s", joinNumbers(verr.Lines), verr.Message))
		case validator.UntranslatedLines:
			problems = append(problems, fmt.Sprintf("Lines %s were not translated.", joinNumbers(verr.Lines)))
		}
	}

	if len(problems) == 0 {
		return "There was an issue with the previous translation. Please try again, following the output format."
	}

	var msg strings.Builder
	msg.WriteString("There were problems with the previous translation:\n")
	for _, p := range problems {
		msg.WriteString("- " + p + "\n")
	}
	msg.WriteString("Please reply with corrected translations for the affected lines only, in the same format.")
	return msg.String()
}

func joinNumbers(numbers []int) string {
	out := make([]string, len(numbers))
	for i, n := range numbers {
		out[i] = fmt.Sprint(n)
	}
	return strings.Join(out, ", ")
}
