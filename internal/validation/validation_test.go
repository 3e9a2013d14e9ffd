package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursehub/internal/apperr"
)

type item struct {
	Text string `json:"text" validate:"required"`
}

type payload struct {
	Name  string  `json:"name" validate:"required"`
	Items []item  `json:"items" validate:"len=2,dive"`
	Score float64 `json:"score" validate:"gt=0"`
	Role  string  `json:"role" validate:"omitempty,oneof=learner admin"`
}

func TestStructReportsJSONNames(t *testing.T) {
	err := Struct(payload{Items: []item{{Text: "a"}}, Role: "root"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	msg := apperr.MessageOf(err)
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "items must have exactly 2 items")
	assert.Contains(t, msg, "score must be greater than 0")
	assert.Contains(t, msg, "role must be one of [learner admin]")
}

func TestStructDivesIntoSlices(t *testing.T) {
	err := Struct(payload{Name: "n", Items: []item{{Text: "a"}, {}}, Score: 1})
	require.Error(t, err)
	assert.Contains(t, apperr.MessageOf(err), "items[1].text is required")
}

func TestStructOK(t *testing.T) {
	assert.NoError(t, Struct(payload{Name: "n", Items: []item{{"a"}, {"b"}}, Score: 2}))
}
