package verdict

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *Result
		wantErr error
	}{
		{
			name: "plain object",
			text: `{"is_incorrect": true, "confidence": 0.9, "reason": "wrong path"}`,
			want: &Result{IsIncorrect: true, Confidence: 0.9, Reason: "wrong path"},
		},
		{
			name: "wrapped in prose and fences",
			text: "Sure.\n```json\n{\"is_incorrect\": false, \"confidence\": 0.2, \"reason\": \"fine\"}\n```\nDone.",
			want: &Result{IsIncorrect: false, Confidence: 0.2, Reason: "fine"},
		},
		{
			name: "extra keys ignored",
			text: `{"is_incorrect": true, "confidence": 1, "reason": "x", "notes": [1,2]}`,
			want: &Result{IsIncorrect: true, Confidence: 1, Reason: "x"},
		},
		{name: "empty", text: "", wantErr: ErrNoJSONFound},
		{name: "no braces", text: "the answer is correct", wantErr: ErrNoJSONFound},
		{name: "only opening brace", text: `{"is_incorrect": true`, wantErr: ErrNoJSONFound},
		{name: "reversed braces", text: "} nothing {", wantErr: ErrNoJSONFound},
		{name: "syntax error", text: `{"is_incorrect": true, "confidence": }`, wantErr: ErrMalformedJSON},
		{name: "two objects", text: `{"a":1} and {"b":2}`, wantErr: ErrMalformedJSON},
		{name: "missing reason", text: `{"is_incorrect": true, "confidence": 0.9}`, wantErr: ErrMissingKeys},
		{name: "missing all", text: `{}`, wantErr: ErrMissingKeys},
		{name: "confidence as string", text: `{"is_incorrect": true, "confidence": "high", "reason": "x"}`, wantErr: ErrMalformedJSON},
		{name: "flag as string", text: `{"is_incorrect": "yes", "confidence": 0.9, "reason": "x"}`, wantErr: ErrMalformedJSON},
		{name: "confidence above one", text: `{"is_incorrect": true, "confidence": 1.5, "reason": "x"}`, wantErr: ErrMalformedJSON},
		{name: "confidence negative", text: `{"is_incorrect": true, "confidence": -0.1, "reason": "x"}`, wantErr: ErrMalformedJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "no_json", Kind(ErrNoJSONFound))
	assert.Equal(t, "malformed_json", Kind(fmt.Errorf("%w: x", ErrMalformedJSON)))
	assert.Equal(t, "missing_keys", Kind(ErrMissingKeys))
	assert.Equal(t, "unavailable", Kind(fmt.Errorf("%w: %w", ErrUnavailable, errors.New("503"))))
	assert.Equal(t, "timeout", Kind(fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)))
	assert.Equal(t, "other", Kind(errors.New("boom")))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(`how do I "restart" job X?`, "run cleanup")
	assert.Contains(t, p, `Query: "how do I \"restart\" job X?"`)
	assert.Contains(t, p, `Response: "run cleanup"`)
	for _, k := range RequiredKeys {
		assert.Contains(t, p, k)
	}
}
