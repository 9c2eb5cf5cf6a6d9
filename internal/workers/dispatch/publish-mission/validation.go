package publishmission

import (
	"encoding/json"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/validation"
)

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["missionId"],
	"properties": {
		"missionId":        {"type": "string", "minLength": 1, "maxLength": 128},
		"ttlMinutes":       {"type": "integer", "minimum": 0, "maximum": 10080},
		"includeEmployees": {"type": "boolean"}
	}
}`)

// ParseInput validates raw job variables and decodes them. Process variables
// beyond the declared ones are ignored.
func ParseInput(variables string) (*Input, error) {
	if err := inputSchema.ValidateJSON(variables).Err(); err != nil {
		return nil, err
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, commonerrors.NewInvalidJobVariablesError(err.Error())
	}
	return &input, nil
}
