package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/rules"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoad_BuildsIndexes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sections", "borrower.yaml"), "id: borrower\nname: Borrower Info\nsequence: 1\n")
	writeFile(t, filepath.Join(root, "sections", "income.yaml"), "id: income\nname: Income\nsequence: 2\n")

	writeFile(t, filepath.Join(root, "questions", "borrower", "citizenship.yaml"), `
id: citizenship
name: Citizenship status
section: borrower
ordinal: 1
level: BORROWER
instructions: "Are you a US citizen?"
type: single_select
access_field: citizenship_type
`)
	writeFile(t, filepath.Join(root, "questions", "income", "base_pay.yaml"), `
id: base_pay
name: Base pay
section: income
ordinal: 1
level: JOB
instructions: "What is your base pay?"
type: currency
access_field: base_pay_amount
criteria: "Employment Type is W2"
`)

	engine, err := rules.NewEngine(4, nil)
	require.NoError(t, err)

	reg, err := Load(root, engine, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.QuestionCount())
	assert.Len(t, reg.Sections(), 2)
	assert.Equal(t, "borrower", reg.Sections()[0].ID)

	q, err := reg.Question("citizenship")
	require.NoError(t, err)
	assert.True(t, q.AlwaysApplicable)
	assert.Equal(t, domain.FlexibilityExact, q.Flexibility)

	q2, err := reg.Question("base_pay")
	require.NoError(t, err)
	assert.False(t, q2.AlwaysApplicable)

	jobQuestions := reg.QuestionsForLevel(domain.LevelJob)
	require.Len(t, jobQuestions, 1)
	assert.Equal(t, "base_pay", jobQuestions[0].ID)

	assert.Equal(t, 2, engine.RulesCount())
}

func TestLoad_DuplicateQuestionIDIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "questions", "a.yaml"), "id: dup\nsection: s\nlevel: PROPOSAL\n")
	writeFile(t, filepath.Join(root, "questions", "b.yaml"), "id: dup\nsection: s\nlevel: PROPOSAL\n")

	engine, err := rules.NewEngine(4, nil)
	require.NoError(t, err)

	_, err = Load(root, engine, nil)
	require.Error(t, err)
}

func TestLoad_MissingRequiredFieldIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "questions", "a.yaml"), "name: no id here\nsection: s\nlevel: PROPOSAL\n")

	engine, err := rules.NewEngine(4, nil)
	require.NoError(t, err)

	_, err = Load(root, engine, nil)
	require.Error(t, err)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoad_EmptyRootProducesEmptyRegistry(t *testing.T) {
	root := t.TempDir()
	engine, err := rules.NewEngine(4, nil)
	require.NoError(t, err)

	reg, err := Load(root, engine, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reg.QuestionCount())
}
