package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name    string         `json:"nome" validate:"required"`
	Ratings map[string]int `json:"avaliacoes,omitempty" validate:"dive,min=0,max=5"`
}

type errorEnvelope struct {
	Error struct {
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func TestValidationError_FieldDetails(t *testing.T) {
	err := NewValidator().Struct(testRecord{Ratings: map[string]int{"limpeza": 9}})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "validation error", env.Error.Message)

	var fields []FieldError
	require.NoError(t, json.Unmarshal(env.Error.Details, &fields))
	assert.ElementsMatch(t, []FieldError{
		{Field: "nome", Message: "required"},
		{Field: "avaliacoes[limpeza]", Message: "max=5"},
	}, fields)
}

func TestValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, errors.New("body too large"))

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.JSONEq(t, `"body too large"`, string(env.Error.Details))
}

func TestSuccessAndError(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "sync_1_abc"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"sync_1_abc"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Error(rec, http.StatusConflict, "locked")
	assert.JSONEq(t, `{"error":{"message":"locked"}}`, rec.Body.String())
}
