package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := Wrap(CodeRemote, "write coins", stderrors.New("connection refused"))

	assert.ErrorIs(t, err, ErrRemote)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "write coins: connection refused", err.Error())
}

func TestGetCodeThroughWrapping(t *testing.T) {
	inner := New(CodeValidation, "title is required")
	outer := fmt.Errorf("add task: %w", inner)

	assert.Equal(t, CodeValidation, GetCode(outer))
	assert.True(t, HasCode(outer, CodeValidation))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeForbidden:       http.StatusForbidden,
		CodeUnauthenticated: http.StatusUnauthorized,
		CodeRemote:          http.StatusBadGateway,
		CodeUnknown:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, code.HTTPStatus(), code)
	}
}
