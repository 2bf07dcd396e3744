package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the subset of the SSM client used here.
type ssmAPI interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
}

// SSMExecutor runs commands on EC2 instances through AWS Systems Manager Run Command.
// Target hosts are instance IDs.
type SSMExecutor struct {
	client           ssmAPI
	executionTimeout int
}

// NewSSMExecutor loads AWS credentials from the environment and builds an executor.
func NewSSMExecutor(ctx context.Context, region string, executionTimeoutSeconds int) (*SSMExecutor, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &SSMExecutor{
		client:           ssm.NewFromConfig(cfg),
		executionTimeout: executionTimeoutSeconds,
	}, nil
}

func (e *SSMExecutor) Submit(ctx context.Context, sub Submission) (string, error) {
	params := map[string][]string{"commands": sub.Commands}
	if e.executionTimeout > 0 {
		params["executionTimeout"] = []string{strconv.Itoa(e.executionTimeout)}
	}

	out, err := e.client.SendCommand(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String(sub.Document),
		InstanceIds:  []string{sub.Target},
		Parameters:   params,
	})
	if err != nil {
		var invalidInstance *types.InvalidInstanceId
		if errors.As(err, &invalidInstance) {
			return "", fmt.Errorf("%w: %s: %v", ErrUnknownTarget, sub.Target, err)
		}
		return "", fmt.Errorf("ssm send command: %w", err)
	}
	if out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return "", errors.New("ssm send command: response carried no command id")
	}
	return aws.ToString(out.Command.CommandId), nil
}

func (e *SSMExecutor) Status(ctx context.Context, invocationID, target string) (*Invocation, error) {
	out, err := e.client.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(invocationID),
		InstanceId: aws.String(target),
	})
	if err != nil {
		var notYet *types.InvocationDoesNotExist
		if errors.As(err, &notYet) {
			return nil, ErrInvocationNotFound
		}
		return nil, fmt.Errorf("ssm get command invocation: %w", err)
	}

	return &Invocation{
		Status:   mapSSMStatus(out.Status),
		Stdout:   aws.ToString(out.StandardOutputContent),
		Stderr:   aws.ToString(out.StandardErrorContent),
		ExitCode: int(out.ResponseCode),
	}, nil
}

func mapSSMStatus(s types.CommandInvocationStatus) Status {
	switch s {
	case types.CommandInvocationStatusSuccess:
		return StatusSuccess
	case types.CommandInvocationStatusFailed,
		types.CommandInvocationStatusCancelled,
		types.CommandInvocationStatusTimedOut:
		return StatusFailed
	default:
		// Pending, InProgress, Delayed, Cancelling.
		return StatusPending
	}
}
