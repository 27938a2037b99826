package generation

import "fmt"

const systemPrompt = "You are a professional resume writer. Be concise and impactful."

// resumePrompt renders the section prompt. Unknown sections fall back to
// experience bullets.
func resumePrompt(req ResumeRequest) string {
	contextLine := ""
	if req.Context != "" {
		contextLine = fmt.Sprintf("Additional context: %s\n", req.Context)
	}

	switch req.Section {
	case SectionSummary:
		return fmt.Sprintf(`Write a compelling professional summary (2-3 sentences) for a %s.
Highlight key strengths and career goals.
Language: %s
%s`, req.JobTitle, req.Language, contextLine)
	case SectionSkills:
		return fmt.Sprintf(`List 8-10 relevant technical and soft skills for a %s.
Return as comma-separated list.
Language: %s`, req.JobTitle, req.Language)
	case SectionImprove:
		return fmt.Sprintf(`Improve this resume content to be more impactful and professional:
%s

Make it achievement-focused with metrics where possible.
Language: %s`, req.Context, req.Language)
	default:
		return fmt.Sprintf(`Generate 3-4 professional bullet points for a %s position.
Focus on achievements, metrics, and impact. Use action verbs.
Language: %s
%s
Return only the bullet points, one per line, starting with •`, req.JobTitle, req.Language, contextLine)
	}
}

func coverLetterPrompt(req CoverLetterRequest) string {
	return fmt.Sprintf(`Write a professional cover letter for a %s position at %s.

Based on this candidate summary:
%s

Requirements:
- 3 paragraphs: intro, body (achievements), closing
- Professional but personable tone
- Mention specific interest in the company
- Language: %s`, req.JobTitle, req.Company, req.ResumeSummary, req.Language)
}
