package validation

import (
	"testing"

	commonerrors "mission-dispatch/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const publishSchema = `{
  "type": "object",
  "required": ["missionId"],
  "properties": {
    "missionId":  {"type": "string", "minLength": 1},
    "ttlMinutes": {"type": "integer", "minimum": 0},
    "options": {
      "type": "object",
      "required": ["mode"],
      "properties": {"mode": {"type": "string", "enum": ["auto", "manual"]}}
    }
  }
}`

func TestSchema_Valid(t *testing.T) {
	s := MustCompile("publish", publishSchema)

	res := s.ValidateJSON(`{"missionId": "m-1", "ttlMinutes": 15}`)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err())

	res = s.Validate(map[string]interface{}{"missionId": "m-1", "options": map[string]interface{}{"mode": "auto"}})
	assert.True(t, res.Valid)
}

func TestSchema_ReportsFields(t *testing.T) {
	s := MustCompile("publish", publishSchema)

	res := s.ValidateJSON(`{"ttlMinutes": -1, "options": {}}`)
	require.False(t, res.Valid)
	assert.True(t, res.HasErrors("missionId"))
	assert.True(t, res.HasErrors("ttlMinutes"))
	assert.True(t, res.HasErrors("options.mode"))
	assert.Len(t, res.GetErrorsForField("options"), 1)

	err := res.Err()
	require.Error(t, err)
	std := commonerrors.AsStandard(err)
	assert.Equal(t, commonerrors.ErrCodeInvalidJobVariables, std.Code)
	assert.Contains(t, std.Details, "missionId")
}

func TestSchema_MalformedDocument(t *testing.T) {
	res := MustCompile("publish", publishSchema).ValidateJSON(`{not json`)
	assert.False(t, res.Valid)
	assert.Equal(t, "INVALID_DOCUMENT", res.Errors[0].Code)
}

func TestCompile_RejectsBadSchema(t *testing.T) {
	_, err := Compile("broken", `{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile("broken", `{`) })
}
