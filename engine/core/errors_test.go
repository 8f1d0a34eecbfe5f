package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("Should wrap the cause and expose the code", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewError(cause, ErrCodeIndex, map[string]any{"provider": "pgvector"})
		assert.Equal(t, "INDEX_ERROR: connection refused", err.Error())
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "pgvector", err.AsMap()["details"].(map[string]any)["provider"])
	})

	t.Run("Should render only the code when there is no cause", func(t *testing.T) {
		err := NewError(nil, ErrCodeValidation, nil)
		assert.Equal(t, "VALIDATION_ERROR", err.Error())
	})

	t.Run("Should find codes through wrapping layers", func(t *testing.T) {
		inner := NewError(errors.New("bad pdf"), ErrCodeDocumentLoad, nil)
		outer := fmt.Errorf("ingest guide.pdf: %w", inner)
		assert.True(t, IsCode(outer, ErrCodeDocumentLoad))
		assert.False(t, IsCode(outer, ErrCodeEmbedding))
		assert.Equal(t, ErrCodeDocumentLoad, ErrorCode(outer))
		assert.False(t, IsCode(errors.New("plain"), ErrCodeDocumentLoad))
	})

	t.Run("Should find nested codes below an outer code", func(t *testing.T) {
		inner := NewError(errors.New("timeout"), ErrCodeEmbedding, nil)
		outer := NewError(inner, ErrCodeIndex, nil)
		assert.True(t, IsCode(outer, ErrCodeEmbedding))
	})
}

func TestProblem(t *testing.T) {
	t.Run("Should fill defaults for an empty problem", func(t *testing.T) {
		p := NormalizeProblem(nil)
		assert.Equal(t, http.StatusInternalServerError, p.Status)
		assert.Equal(t, "Internal Server Error", p.Title)
		assert.Equal(t, "about:blank", p.Type)
	})

	t.Run("Should publish title under error and keep non reserved extras", func(t *testing.T) {
		body := BuildProblemBody(NormalizeProblem(&Problem{
			Status: http.StatusBadRequest,
			Title:  "Message is required",
			Extras: map[string]any{"code": ErrCodeValidation, "status": 999, "field": "message"},
		}))
		require.Equal(t, "Message is required", body["error"])
		assert.Equal(t, http.StatusBadRequest, body["status"])
		assert.Equal(t, ErrCodeValidation, body["code"])
		assert.Equal(t, "message", body["field"])
	})

	t.Run("Should map validation errors to bad request", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, StatusForError(NewError(nil, ErrCodeValidation, nil)))
		assert.Equal(t, http.StatusInternalServerError, StatusForError(NewError(nil, ErrCodeIndex, nil)))
		assert.Equal(t, http.StatusInternalServerError, StatusForError(errors.New("boom")))
	})
}
