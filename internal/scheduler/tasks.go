package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskReopenSweep = "conversations.reopen_sweep"

// SystemActorID identifies sweeps triggered by the scheduler rather
// than by an agent.
const SystemActorID = "system"

type ReopenSweepPayload struct {
	ActorID string `json:"actorId"`
}

func NewReopenSweepTask(payload ReopenSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReopenSweep, data), nil
}

func ParseReopenSweepPayload(task *asynq.Task) (ReopenSweepPayload, error) {
	var payload ReopenSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReopenSweepPayload{}, err
	}
	return payload, nil
}
