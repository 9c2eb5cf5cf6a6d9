package cancelmission

import (
	"encoding/json"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/validation"
)

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["missionId", "actorId", "actorRole"],
	"properties": {
		"missionId": {"type": "string", "minLength": 1, "maxLength": 128},
		"reason":    {"type": "string", "maxLength": 500},
		"actorId":   {"type": "string", "minLength": 1},
		"actorRole": {"type": "string", "enum": ["administrator", "operator", "subcontractor", "employee"]}
	}
}`)

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
