// Package prompt composes the fixed instruction text given to the assessment model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/xiaot623/medeval/internal/domain"
)

// NoPriorEvaluation is the placeholder used when no prior summary exists.
const NoPriorEvaluation = "(no previous evaluation available)"

// BeginTurn frames the opening model call of a session.
const BeginTurn = "Start the survey"

// CriteriaHeader lists the six competency axes.
const CriteriaHeader = "**A. H&P**\n**B. Differential**\n**C. Plan**\n**D. Follow-up**\n**E. Emergency**\n**F. Communication**"

// Rubric is the fixed six-axis, four-level competency framework.
const Rubric = `RUBRICS (concise performance levels):
A1: Insufficient/extraneous info; exam misses key findings  
A2: Adequate but cannot distinguish key vs extraneous  
A3: Appropriate, tailored, thorough; may include excess detail  
A4: Exceptionally focused; identifies urgent issues; distinguishes key vs extraneous  

B1: Limited filtering/prioritization; basic differential  
B2: Basic differential; begins prioritizing with data  
B3: Synthesizes data into complete, prioritized differential  
B4: Exceptional; prioritizes life/limb threats using all info  

C1: Struggles to form plans or offers none  
C2: Forms plans with gaps/errors  
C3: Reliable, complete, appropriate, patient-tailored plans  
C4: Exceptional planning, patient-centered, comprehensive  

D1: Poor re-evaluation/follow-up  
D2: Re-evaluates with prompting; begins integrating new data  
D3: Reliable, timely re-eval; integrates data; completes tasks  
D4: Exceptional; proactive; manages multiple patients; anticipates needs  

E1: Misses deterioration; delays seeking help; cannot stabilize  
E2: Recognizes abnormalities; seeks help; initiates basic stabilization  
E3: Recognizes all trends; initiates basic + some advanced measures  
E4: Exceptional vigilance; advanced stabilization; excellent judgment  

F1: One-way/untailored communication; misses emotions  
F2: Usually tailored; generally effective; works with team  
F3: Consistently tailored; highly emotionally aware; collaborative  
F4: Exceptional communicator; handles conflict; highly regarded  `

const instructionsTemplate = `
You are a survey bot designed to help teachers evaluate their students. 
You will be provided with information about a student, specific evaluation criteria, and (if available) a previous evaluation summary. 
You will conduct an interactive survey with the teacher to gather their current assessment.

Here is the student information:
<student_info>
%s
</student_info>

Here are the evaluation criteria and detailed rubrics you should focus on:
<evaluation_criteria>
%s

%s
</evaluation_criteria>

%s

Begin by greeting the teacher and asking your first question about the student based on the evaluation criteria provided.
Your output should consist ONLY of your visible message to the teacher; do not include internal reasoning or mention of the previous evaluation.
`

// SubjectInfo renders the subject descriptor block.
func SubjectInfo(subject *domain.Subject) string {
	return fmt.Sprintf("Name: %s\nDepartment: %s", subject.Name, subject.Department)
}

// PriorBlock renders the previous-evaluation block. It is never empty.
func PriorBlock(prior *domain.Summary) string {
	body := NoPriorEvaluation
	if prior != nil {
		body = prior.Content
	}
	return "<previous_evaluation>\n" + body + "\n</previous_evaluation>"
}

// BuildInstructions composes the session instructions from the subject
// descriptor, the rubric definition and an optional prior summary. It is pure.
func BuildInstructions(subjectInfo, criteria string, prior *domain.Summary) string {
	return fmt.Sprintf(instructionsTemplate, subjectInfo, criteria, Rubric, PriorBlock(prior))
}

// SummarySystem is the system instruction for summarization calls.
const SummarySystem = "You are a medical education assistant."

// SummaryFallback is stored when the model returns no summary text.
const SummaryFallback = "Summary not generated."

// RenderTranscript renders messages as role-tagged lines in order.
func RenderTranscript(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, strings.ToUpper(string(m.Sender))+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// SummaryRequest builds the user content of a summarization call.
func SummaryRequest(messages []domain.Message) string {
	return "Conversation:\n" + RenderTranscript(messages) +
		"\n\nSummarize with ratings A–F, strengths, concerns, suggestions, and overall rating (1–4). Then, provide a recommendation for the student."
}
