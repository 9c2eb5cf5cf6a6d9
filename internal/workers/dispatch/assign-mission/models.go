package assignmission

type Input struct {
	MissionID   string `json:"missionId"`
	CandidateID string `json:"candidateId"`
	ActorID     string `json:"actorId"`
	ActorRole   string `json:"actorRole"`
}

type Output struct {
	MissionID        string `json:"missionId"`
	AssignedWorkerID string `json:"assignedWorkerId"`
	Status           string `json:"missionStatus"`
}
