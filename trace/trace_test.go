package trace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewright/systest/scheduler"
)

func TestTrace_RecordAndSerializeRoundTrip(t *testing.T) {
	tr := New()
	tr.RecordSchedule(0)
	tr.RecordBoolean(true)
	tr.RecordInteger(41)
	tr.RecordSchedule(1)

	var buf bytes.Buffer
	require.NoError(t, tr.Serialize(&buf))

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, tr.Entries(), parsed.Entries())
}

func TestTrace_SerializeSerializeIsByteIdentical(t *testing.T) {
	tr := New()
	tr.RecordSchedule(3)
	tr.RecordInteger(7)

	var first, second bytes.Buffer
	require.NoError(t, tr.Serialize(&first))

	parsed, err := Parse(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	require.NoError(t, parsed.Serialize(&second))

	assert.Equal(t, first.String(), second.String())
}

func TestTrace_ParseIgnoresCommentsAndBlankLines(t *testing.T) {
	input := "# a leading comment\n\nSCHED 0\n  # indented comment\nBOOL 1\nINT 5\n"
	tr, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, Schedule, entries[0].Kind)
	assert.Equal(t, Boolean, entries[1].Kind)
	assert.True(t, entries[1].Bool)
	assert.Equal(t, Integer, entries[2].Kind)
	assert.Equal(t, 5, entries[2].Int)
}

func TestTrace_ParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("SCHED notanumber\n"))
	assert.Error(t, err)
}

func TestTrace_ParseRejectsUnknownKind(t *testing.T) {
	_, err := Parse(strings.NewReader("WAT 1\n"))
	assert.Error(t, err)
}

func TestTrace_EachInstanceGetsAUniqueIterationID(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a.IterationID, b.IterationID)
}

func TestReplay_ReproducesRecordedOperationChoices(t *testing.T) {
	tr := New()
	tr.RecordSchedule(1)
	tr.RecordSchedule(0)

	r := NewReplay(tr)
	ops := []*scheduler.Operation{
		scheduler.NewOperation(0, "op-0"),
		scheduler.NewOperation(1, "op-1"),
	}

	first, ok := r.NextOperation(ops, nil, false)
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.ID)

	second, ok := r.NextOperation(ops, nil, false)
	require.True(t, ok)
	assert.Equal(t, uint64(0), second.ID)

	assert.True(t, r.HasReachedMaxSchedulingSteps())
}

func TestReplay_MismatchedChoiceKindYieldsNoDecision(t *testing.T) {
	tr := New()
	tr.RecordBoolean(true)

	r := NewReplay(tr)
	ops := []*scheduler.Operation{scheduler.NewOperation(0, "op-0")}
	_, ok := r.NextOperation(ops, nil, false)
	assert.False(t, ok)
}
