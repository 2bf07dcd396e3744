package models

import "time"

// CommandKind distinguishes the remote operations multiplexed through the
// same dispatch/poll path.
type CommandKind string

const (
	KindGenerateConfig CommandKind = "GenerateConfig"
	KindFetchArtifact  CommandKind = "FetchArtifact"
)

// CommandStatus is the locally observed status of a dispatched command.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandSucceeded CommandStatus = "succeeded"
	CommandFailed    CommandStatus = "failed"
	CommandTimedOut  CommandStatus = "timed_out"
	CommandCanceled  CommandStatus = "canceled"
)

// ProvisioningCommand correlates a dispatched remote invocation with the
// device it was issued for.
type ProvisioningCommand struct {
	InvocationID string        `bson:"invocationId" json:"invocationId"`
	DeviceID     string        `bson:"deviceId" json:"deviceId"`
	TargetHost   string        `bson:"targetHost" json:"targetHost"`
	Kind         CommandKind   `bson:"kind" json:"kind"`
	Status       CommandStatus `bson:"status" json:"status"`
	Detail       string        `bson:"detail,omitempty" json:"detail,omitempty"`
	SubmittedAt  time.Time     `bson:"submittedAt" json:"submittedAt"`
	CompletedAt  *time.Time    `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}
