package streamparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnoseTruncationEmptyNotTruncated(t *testing.T) {
	d := diagnoseTruncation("")
	assert.False(t, d.Truncated)
}

func TestDiagnoseTruncationWhitespaceOnlyNotTruncated(t *testing.T) {
	d := diagnoseTruncation("   ")
	assert.False(t, d.Truncated)
}

func TestDiagnoseTruncationValidJSONNotTruncated(t *testing.T) {
	assert.False(t, diagnoseTruncation(`{"a":1}`).Truncated)
	assert.False(t, diagnoseTruncation(`{"a":{"b":[1,2,3]}}`).Truncated)
}

func TestDiagnoseTruncationMissingClosingBrace(t *testing.T) {
	d := diagnoseTruncation(`{"filePath":"/tmp/x"`)
	assert.True(t, d.Truncated)
}

func TestDiagnoseTruncationMissingClosingBracket(t *testing.T) {
	d := diagnoseTruncation(`{"items":[1,2,3`)
	assert.True(t, d.Truncated)
}

func TestDiagnoseTruncationUnclosedString(t *testing.T) {
	d := diagnoseTruncation(`{"a":"unterminated`)
	assert.True(t, d.Truncated)
	assert.Equal(t, "unbalanced braces/brackets (braces=1, brackets=0)", d.Reason)
}

func TestDiagnoseTruncationMalformedButNotTruncated(t *testing.T) {
	d := diagnoseTruncation(`{"a":1,}`)
	assert.False(t, d.Truncated)
	assert.Equal(t, "malformed JSON", d.Reason)
}

func TestDiagnoseTruncationMidEscapeSequence(t *testing.T) {
	d := diagnoseTruncation(`{"a":"line\`)
	assert.True(t, d.Truncated)
}

func TestParserEmptyContentAndUsage(t *testing.T) {
	p := New(nil)
	events := p.Feed([]byte(`{"content":""}{"usage":0.1}`))
	assert.Len(t, events, 2)
	assert.Equal(t, EventContent, events[0].Kind)
	assert.Equal(t, "", events[0].Content)
	assert.Equal(t, EventUsage, events[1].Kind)
	assert.InDelta(t, 0.1, events[1].Usage, 0.0001)
}

func TestParserDuplicateContentSuppression(t *testing.T) {
	p := New(nil)
	events := p.Feed([]byte(`{"content":"A"}{"content":"A"}{"content":"B"}`))
	assert.Len(t, events, 2)
	assert.Equal(t, "A", events[0].Content)
	assert.Equal(t, "B", events[1].Content)
}

func TestParserToolCallAccumulationAndFinalize(t *testing.T) {
	p := New(nil)
	p.Feed([]byte(`{"name":"read_file","toolUseId":"t1"}`))
	p.Feed([]byte(`{"input":"{\"path\":"}`))
	p.Feed([]byte(`{"input":"\"/tmp/x\"}"}`))
	p.Feed([]byte(`{"stop":true}`))

	calls := p.Finalize()
	assert.Len(t, calls, 1)
	assert.Equal(t, "t1", calls[0].ID)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.JSONEq(t, `{"path":"/tmp/x"}`, calls[0].Arguments)
}

func TestParserTruncatedToolCallRecordsDiagnosis(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink)
	p.Feed([]byte(`{"name":"write_file","toolUseId":"t2"}`))
	p.Feed([]byte(`{"input":"{\"filePath\":\"/tmp/x\""}`))
	// stream ends without stop:true

	calls := p.Finalize()
	assert.Len(t, calls, 1)
	assert.Equal(t, "{}", calls[0].Arguments)
	assert.Len(t, sink.toolTruncations, 1)
	assert.Equal(t, "t2", sink.toolTruncations[0].id)
}

func TestDedupeToolCallsPrefersLongerArguments(t *testing.T) {
	calls := []FinalToolCall{
		{ID: "a", Name: "f", Arguments: `{"x":1}`},
		{ID: "a", Name: "f", Arguments: `{"x":1,"y":2}`},
	}
	result := DedupeToolCalls(calls)
	assert.Len(t, result, 1)
	assert.Equal(t, `{"x":1,"y":2}`, result[0].Arguments)
}

func TestDedupeToolCallsByNameArgumentsWhenNoID(t *testing.T) {
	calls := []FinalToolCall{
		{Name: "f", Arguments: `{"x":1}`},
		{Name: "f", Arguments: `{"x":1}`},
		{Name: "f", Arguments: `{"x":2}`},
	}
	result := DedupeToolCalls(calls)
	assert.Len(t, result, 2)
}

type toolTruncationRecord struct {
	id, name  string
	sizeBytes int
	reason    string
}

type contentTruncationRecord struct {
	digest    string
	sizeBytes int
	reason    string
}

type recordingSink struct {
	toolTruncations    []toolTruncationRecord
	contentTruncations []contentTruncationRecord
}

func (s *recordingSink) StoreToolTruncation(id, toolName string, sizeBytes int, reason string) {
	s.toolTruncations = append(s.toolTruncations, toolTruncationRecord{id, toolName, sizeBytes, reason})
}

func (s *recordingSink) StoreContentTruncation(digest string, sizeBytes int, reason string) {
	s.contentTruncations = append(s.contentTruncations, contentTruncationRecord{digest, sizeBytes, reason})
}
