package sessions

import (
	"fmt"

	"interview-backend/internal/llm"
)

func parseResumePrompt(resumeText string) llm.Request {
	system := `You are a resume parser. Extract structured data from the resume text.
Respond with a single JSON object containing these keys:
  "name" (string, required), "email" (string), "phone" (string),
  "summary" (string), "skills" (array of strings),
  "experience" (array of objects with "title", "company", "duration", "highlights"),
  "education" (array of objects with "degree", "institution", "year"),
  "certifications" (array of strings), "projects" (array of objects).
Use empty strings or empty arrays for anything absent. No commentary.`
	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User(resumeText),
		},
		Temperature: 0,
	}
}

func parseJobPrompt(jobDescription, targetRole string) llm.Request {
	system := `You are a job-posting parser. Extract structured data from the posting.
Respond with a single JSON object containing:
  "title" (string), "company" (string), "location" (string),
  "requiredSkills" (array of strings), "preferredSkills" (array of strings),
  "responsibilities" (array of strings), "experienceYears" (string),
  "summary" (string).
Use empty strings or empty arrays for anything absent. No commentary.`
	user := jobDescription
	if targetRole != "" {
		user = fmt.Sprintf("Target role: %s\n\n%s", targetRole, jobDescription)
	}
	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User(user),
		},
		Temperature: 0,
	}
}

func matchPrompt(resumeJSON, jobJSON string) llm.Request {
	system := `You compare a candidate's resume against a job posting.
Respond with a single JSON object containing:
  "matchScore" (integer 0-100),
  "matchedSkills" (array of strings),
  "missingSkills" (array of strings),
  "strengths" (array of strings),
  "gaps" (array of strings),
  "summary" (string, 2-3 sentences).
Never include an "error" key unless the inputs are unusable. No commentary.`
	user := fmt.Sprintf("Resume data:\n%s\n\nJob data:\n%s", resumeJSON, jobJSON)
	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User(user),
		},
		Temperature: 0,
	}
}

func prepPlanPrompt(resumeJSON, jobJSON, matchJSON string) llm.Request {
	system := `You build an interview preparation plan for a candidate.
Respond with a single JSON object containing:
  "focusAreas" (array of objects with "topic" and "reason"),
  "likelyQuestions" (array of 15 to 20 objects with "question", "category",
    and "hint"),
  "talkingPoints" (array of strings),
  "studyPlan" (array of objects with "day" and "activities").
The likelyQuestions array must contain between 15 and 20 entries. No commentary.`
	user := fmt.Sprintf("Resume data:\n%s\n\nJob data:\n%s\n\nMatch result:\n%s", resumeJSON, jobJSON, matchJSON)
	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User(user),
		},
		Temperature: 0,
	}
}

func timelinePrompt(candidateName, jobTitle string, days int, prepPlanJSON, matchJSON string) llm.Request {
	if candidateName == "" {
		candidateName = "the candidate"
	}
	if jobTitle == "" {
		jobTitle = "the position"
	}
	system := fmt.Sprintf(`You are an expert interview coach. Create a detailed day-by-day preparation
timeline for %s interviewing for a %s position in %d days.
Cover the prep plan's focus areas and questions, gap strategies from the match
result, and company research, then finish with an "Interview Day" entry focused
on relaxation, quick review, and setup checks.
Respond with a single JSON object:
  {"timeline": [{"day": <1..%d or "Interview Day">, "focus": "...",
    "schedule": [{"timeSlot": "...", "task": "..."}], "notes": "..."}],
   "estimatedTotalHours": <integer, optional>}
No commentary.`, candidateName, jobTitle, days, days)
	user := fmt.Sprintf("Prep plan:\n%s\n\nMatch result:\n%s", prepPlanJSON, matchJSON)
	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User(user),
		},
		Temperature: 0.5,
	}
}

func rewritePrompt(resumeJSON, jobDescription, section string) llm.Request {
	system := fmt.Sprintf(`You are an expert resume writer improving the %q section of a resume for a
specific job. Align it with the job requirements, use action verbs, quantify
achievements, and keep it ATS friendly.
Respond with a single JSON object:
  {"original": "<current content>", "improved": "<rewritten content>",
   "explanations": [{"change": "...", "rationale": "..."}]}
No commentary.`, section)
	user := fmt.Sprintf("Resume data:\n%s\n\nJob description:\n%s\n\nRewrite the %s section.",
		resumeJSON, jobDescription, section)
	return llm.Request{
		Messages: []llm.Message{
			llm.System(system),
			llm.User(user),
		},
		Temperature: 0.4,
	}
}
