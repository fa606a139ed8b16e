package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xiaot623/medeval/internal/domain"
)

func TestBuildInstructionsWithoutPrior(t *testing.T) {
	info := SubjectInfo(&domain.Subject{Name: "Ana Ruiz", Department: "Internal Medicine"})
	out := BuildInstructions(info, CriteriaHeader, nil)

	assert.Contains(t, out, "<student_info>\nName: Ana Ruiz\nDepartment: Internal Medicine\n</student_info>")
	assert.Contains(t, out, "<previous_evaluation>\n(no previous evaluation available)\n</previous_evaluation>")
	assert.Contains(t, out, CriteriaHeader)
	assert.Contains(t, out, Rubric)
	assert.True(t, strings.Contains(out, "Your output should consist ONLY of your visible message to the teacher"))
}

func TestBuildInstructionsWithPrior(t *testing.T) {
	prior := &domain.Summary{Content: "A3 B2 C3 D2 E3 F4. Overall 3.", CreatedAt: time.Now()}
	out := BuildInstructions("Name: X\nDepartment: Y", CriteriaHeader, prior)

	assert.Contains(t, out, "<previous_evaluation>\nA3 B2 C3 D2 E3 F4. Overall 3.\n</previous_evaluation>")
	assert.NotContains(t, out, NoPriorEvaluation)
}

func TestBuildInstructionsDeterministic(t *testing.T) {
	a := BuildInstructions("Name: X\nDepartment: Y", CriteriaHeader, nil)
	b := BuildInstructions("Name: X\nDepartment: Y", CriteriaHeader, nil)
	assert.Equal(t, a, b)
}

func TestRubricHasSixAxesFourLevels(t *testing.T) {
	for _, axis := range []string{"A", "B", "C", "D", "E", "F"} {
		for _, level := range []string{"1", "2", "3", "4"} {
			assert.Contains(t, Rubric, "\n"+axis+level+": ")
		}
		assert.NotContains(t, Rubric, "\n"+axis+"5: ")
	}
}

func TestSummaryRequest(t *testing.T) {
	messages := []domain.Message{
		{Sender: domain.SenderAssistant, Content: "Hello, how did they do?"},
		{Sender: domain.SenderUser, Content: "Solid history taking."},
	}
	out := SummaryRequest(messages)
	assert.True(t, strings.HasPrefix(out, "Conversation:\nASSISTANT: Hello, how did they do?\nUSER: Solid history taking.\n\n"))
	assert.Contains(t, out, "overall rating (1–4)")
}
