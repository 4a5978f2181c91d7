package migrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

func stepSequence() []Step {
	return []Step{
		NewBootstrapStep(),
		NewIntroduceStep(domain.OwnerKindUser),
		NewIntroduceStep(domain.OwnerKindRole),
		NewRetireStep(domain.OwnerKindUser),
	}
}

func journalFor(steps []Step, n int) []AppliedStep {
	applied := make([]AppliedStep, 0, n)
	for i := 0; i < n; i++ {
		applied = append(applied, AppliedStep{
			Version:   i + 1,
			Name:      steps[i].Name(),
			AppliedAt: time.Now(),
		})
	}
	return applied
}

func TestVerifyJournalEmptyJournalStartsAtFirstStep(t *testing.T) {
	next, err := verifyJournal(stepSequence(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestVerifyJournalPrefixResumesAfterLastApplied(t *testing.T) {
	steps := stepSequence()
	for n := 0; n <= len(steps); n++ {
		next, err := verifyJournal(steps, journalFor(steps, n))
		require.NoError(t, err)
		assert.Equal(t, n, next)
	}
}

func TestVerifyJournalRejectsVersionGap(t *testing.T) {
	steps := stepSequence()
	applied := journalFor(steps, 2)
	applied[1].Version = 3

	_, err := verifyJournal(steps, applied)
	assert.ErrorContains(t, err, "journal gap")
}

func TestVerifyJournalRejectsNameMismatch(t *testing.T) {
	steps := stepSequence()
	applied := journalFor(steps, 2)
	applied[1].Name = "introduce_facility_store"

	_, err := verifyJournal(steps, applied)
	assert.ErrorContains(t, err, "journal mismatch")
}

func TestVerifyJournalRejectsLongerJournalThanSequence(t *testing.T) {
	steps := stepSequence()
	applied := journalFor(steps, len(steps))
	applied = append(applied, AppliedStep{Version: len(steps) + 1, Name: "retire_generic_role_rows"})

	_, err := verifyJournal(steps[:len(steps)], applied)
	assert.Error(t, err)
}

func TestStepNamesIdentifyTheirEntityType(t *testing.T) {
	assert.Equal(t, "bootstrap_generic_store", NewBootstrapStep().Name())
	assert.Equal(t, "introduce_instructor_store", NewIntroduceStep(domain.OwnerKindInstructor).Name())
	assert.Equal(t, "retire_generic_assessment_rows", NewRetireStep(domain.OwnerKindAssessment).Name())
}
