package interviews

import (
	"encoding/json"
	"fmt"
	"strings"

	"interview-backend/internal/llm"
)

// interviewerSystem builds the IRIS system prompt from the frozen session
// snapshots. One question per turn, no feedback, no breaking character.
func interviewerSystem(resumeSnapshot, jobSnapshot map[string]any, interviewType string) string {
	name := stringField(resumeSnapshot, "name")
	if name == "" {
		name = "the candidate"
	}
	title := stringField(jobSnapshot, "title")
	if title == "" {
		title = "the role"
	}
	skills := strings.Join(stringList(jobSnapshot, "requiredSkills"), ", ")
	candidateSkills := strings.Join(stringList(resumeSnapshot, "skills"), ", ")

	return fmt.Sprintf(`You are IRIS, an AI interviewer conducting a realistic, structured mock interview.
Interview type: %q. Candidate: %s. Position: %s.
Required skills: %s.
Candidate's listed skills: %s.

Rules you must follow strictly:
- You are ONLY the interviewer. Never give feedback, hints, answers, or evaluations during the interview. Brief neutral acknowledgements like "Okay." or "Understood." are fine.
- Ask exactly ONE question per turn.
- If the candidate goes off topic, politely steer back to the last question.
- Adapt question depth to the interview type: technical interviews focus on the required skills, behavioral interviews on past situations, general interviews mix both.
- The full interview is roughly 17 to 22 questions. Move promptly between topics.
- When wrapping up, state that a detailed analysis report will be available shortly after the interview concludes.
- Never break character.`, interviewType, name, title, skills, candidateSkills)
}

func greetingRequest(systemPrompt, candidateName, interviewType string) llm.Request {
	if candidateName == "" {
		candidateName = "the candidate"
	}
	user := fmt.Sprintf("Start the %q interview with %s. Give a brief professional greeting and ask your first question.",
		interviewType, candidateName)
	return llm.Request{
		Messages: []llm.Message{
			llm.System(systemPrompt),
			llm.User(user),
		},
		Temperature: 0.3,
	}
}

func nextTurnRequest(systemPrompt string, conversation []Turn) llm.Request {
	messages := []llm.Message{llm.System(systemPrompt)}
	for _, turn := range conversation {
		switch turn.Role {
		case RoleInterviewer:
			messages = append(messages, llm.Assistant(turn.Content))
		case RoleCandidate:
			messages = append(messages, llm.User(turn.Content))
		}
	}
	return llm.Request{
		Messages:    messages,
		Temperature: 0.3,
	}
}

func analysisRequest(transcript string, jobSnapshot, resumeSnapshot map[string]any) llm.Request {
	jobJSON := compactObject(jobSnapshot)
	resumeJSON := compactObject(resumeSnapshot)
	system := fmt.Sprintf(`You are an expert interview coach providing detailed and honest analysis of a mock interview transcript.
Base all scores primarily on transcript evidence, not the resume. If the transcript interaction is minimal, scores must be low.

Job requirements: %s
Candidate resume (context only): %s

Respond with a single JSON object with this exact structure:
{
  "overallScore": <integer 0-100>,
  "overallAssessment": "<2-3 paragraph assessment>",
  "technicalAssessment": {"score": <integer 0-100>, "strengths": [...], "weaknesses": [...], "feedback": "..."},
  "communicationAssessment": {"score": <integer 0-100>, "strengths": [...], "weaknesses": [...], "feedback": "..."},
  "behavioralAssessment": {"score": <integer 0-100>, "strengths": [...], "weaknesses": [...], "feedback": "..."},
  "specificFeedback": [{"question": "...", "response": "...", "assessment": "...", "improvement": "..."}],
  "keyImprovementAreas": [{"area": "...", "recommendation": "...", "practiceExercise": "..."}]
}
No commentary outside the JSON object.`, truncate(jobJSON, 2000), truncate(resumeJSON, 5000))

	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User("Transcript:\n" + truncate(transcript, 20000)),
		},
		Temperature: 0,
	}
}

func suggestedAnswersRequest(questions []string, resumeSnapshot, jobSnapshot map[string]any) llm.Request {
	name := stringField(resumeSnapshot, "name")
	title := stringField(jobSnapshot, "title")
	skills := strings.Join(firstN(stringList(jobSnapshot, "requiredSkills"), 5), ", ")
	questionsJSON, _ := json.Marshal(questions)

	system := fmt.Sprintf(`You are an expert interview coach reviewing a mock interview.
Candidate: %s. Job: %s. Skills required: %s.

For each interviewer question below, provide exactly ONE strong alternative answer the candidate could have given.
Questions: %s

Respond with a single JSON object:
{"suggestedAnswers": [{"question": "<question text>", "suggestions": [{"answer": "<better answer>", "rationale": "<why this answer is strong>"}]}]}
No commentary outside the JSON object.`, name, title, skills, string(questionsJSON))

	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User("Provide one strong alternative answer for each interviewer question."),
		},
		Temperature: 0.5,
		MaxTokens:   3000,
	}
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	value, _ := obj[key].(string)
	return strings.TrimSpace(value)
}

func stringList(obj map[string]any, key string) []string {
	if obj == nil {
		return nil
	}
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func compactObject(obj map[string]any) string {
	data, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
