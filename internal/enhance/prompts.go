package enhance

import (
	"fmt"
	"strings"

	"interview-backend/internal/llm"
)

const (
	SectionObjective  = "objective"
	SectionExperience = "experience"
	SectionProject    = "project"
	SectionSkills     = "skills"
)

func normalizeSection(sectionType string) string {
	switch strings.ToLower(strings.TrimSpace(sectionType)) {
	case SectionObjective:
		return SectionObjective
	case SectionExperience:
		return SectionExperience
	case SectionProject:
		return SectionProject
	case SectionSkills:
		return SectionSkills
	default:
		return "general"
	}
}

// enhancePrompt builds the completion request for one section. Temperatures
// and token limits differ per section: objectives need a looser voice,
// skills lists need near-deterministic output.
func enhancePrompt(sectionType, content string) llm.Request {
	var (
		instructions string
		temperature  float32
		maxTokens    int
	)
	switch normalizeSection(sectionType) {
	case SectionObjective:
		instructions = "Rewrite this career objective to be concise and impactful. " +
			"Keep it to two or three sentences, lead with the candidate's strongest value, " +
			"and avoid cliches like 'seeking a challenging position'."
		temperature = 0.6
		maxTokens = 200
	case SectionExperience:
		instructions = "Rewrite this work experience entry as achievement-focused bullet points. " +
			"Start each bullet with a strong action verb, quantify impact wherever the original " +
			"gives numbers, and never invent facts that are not in the original."
		temperature = 0.5
		maxTokens = 400
	case SectionProject:
		instructions = "Rewrite this project description to highlight the problem solved, the " +
			"technologies used and the measurable outcome. Keep it tight and concrete."
		temperature = 0.5
		maxTokens = 350
	case SectionSkills:
		instructions = "Clean up this skills list. Return a comma-separated list with duplicates " +
			"removed, consistent casing and related skills grouped together. Do not add skills " +
			"that are not in the original."
		temperature = 0.3
		maxTokens = 250
	default:
		instructions = "Improve this resume section. Make the language professional and concise " +
			"without inventing facts that are not in the original."
		temperature = 0.7
		maxTokens = 300
	}

	user := fmt.Sprintf("%s\n\nOriginal text:\n%s\n\nReturn only the improved text with no preamble.",
		instructions, content)
	return llm.Request{
		Messages: []llm.Message{
			llm.System("You are an expert resume writer. You improve resume sections while staying faithful to the facts given."),
			llm.User(user),
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
