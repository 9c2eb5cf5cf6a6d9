package cancelmission

type Input struct {
	MissionID string `json:"missionId"`
	Reason    string `json:"reason"`
	ActorID   string `json:"actorId"`
	ActorRole string `json:"actorRole"`
}

type Output struct {
	MissionID string `json:"missionId"`
	Status    string `json:"missionStatus"`
	Reason    string `json:"cancelReason,omitempty"`
}
