package utils

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageRequest struct {
	Content string   `json:"content" validate:"required,max=10"`
	Expert  string   `json:"expert,omitempty" validate:"omitempty,oneof=programming legal"`
	Temp    *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      messageRequest
		wantFields map[string]string
	}{
		{
			name:  "valid",
			input: messageRequest{Content: "Hi", Expert: "legal"},
		},
		{
			name:       "missing content",
			input:      messageRequest{},
			wantFields: map[string]string{"content": "content is required"},
		},
		{
			name:       "content too long",
			input:      messageRequest{Content: strings.Repeat("a", 11)},
			wantFields: map[string]string{"content": "content must be at most 10"},
		},
		{
			name:       "unknown expert",
			input:      messageRequest{Content: "Hi", Expert: "chef"},
			wantFields: map[string]string{"expert": "expert must be one of: programming legal"},
		},
		{
			name:       "temperature out of range",
			input:      messageRequest{Content: "Hi", Temp: ptr(2.5)},
			wantFields: map[string]string{"temperature": "temperature must be less than or equal to 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, "Validation failed", err.Error())
			assert.Equal(t, tt.wantFields, GetValidationFields(err))
			assert.Len(t, ValidationDetails(err), len(tt.wantFields))
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"content":"Hi"}`))
		var req messageRequest
		require.NoError(t, DecodeJSON(r, &req, false))
		assert.Equal(t, "Hi", req.Content)
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(""))
		var req messageRequest
		assert.ErrorIs(t, DecodeJSON(r, &req, false), ErrEmptyBody)
	})

	t.Run("empty body allowed still validates", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(""))
		var req struct {
			SystemPrompt string `json:"system_prompt" validate:"max=5"`
		}
		assert.NoError(t, DecodeJSON(r, &req, true))
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"content":"Hi","model":"gpt"}`))
		var req messageRequest
		err := DecodeJSON(r, &req, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON body")
	})

	t.Run("malformed", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"content":`))
		var req messageRequest
		assert.Error(t, DecodeJSON(r, &req, false))
	})
}

func TestGetValidationFields_PlainError(t *testing.T) {
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.Nil(t, ValidationDetails(assert.AnError))
	assert.False(t, IsValidationError(assert.AnError))
}

func TestParseUUID(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUID("not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid UUID format")
}
