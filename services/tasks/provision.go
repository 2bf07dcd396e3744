package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeProvisionDevice = "device:provision"

// ProvisionPayload identifies the device a queued provisioning run is for.
type ProvisionPayload struct {
	DeviceID string `json:"deviceId"`
}

// NewProvisionTask builds the task for one provisioning attempt. revision is
// the device's last update time, so a retry after ResetFailed gets a fresh
// task ID while duplicate enqueues of the same attempt are rejected.
func NewProvisionTask(deviceID string, revision time.Time, timeout time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ProvisionPayload{DeviceID: deviceID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeProvisionDevice, b)
	opts := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%s:%d", TypeProvisionDevice, deviceID, revision.UnixNano())),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	}
	return task, opts, nil
}

// ParseProvisionPayload decodes a task payload built by NewProvisionTask.
func ParseProvisionPayload(task *asynq.Task) (ProvisionPayload, error) {
	var p ProvisionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, err
	}
	if p.DeviceID == "" {
		return p, fmt.Errorf("payload has no deviceId")
	}
	return p, nil
}
