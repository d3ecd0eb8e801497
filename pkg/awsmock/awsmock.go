// Package awsmock provides in-memory fakes of the AWS APIs used by ecsdeploy.
// Each fake embeds the SDK interface, so calling a method that is not
// implemented here panics and points at the missing fake.
package awsmock

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/cloudformation/cloudformationiface"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecr/ecriface"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/aws/aws-sdk-go/service/elbv2/elbv2iface"
	"github.com/samber/lo"
)

const (
	Region    = "us-east-2"
	AccountID = "123456789012"
)

// TaskDefinitionARN builds a task definition ARN in the fake account
func TaskDefinitionARN(family string, revision int64) string {
	return fmt.Sprintf("arn:aws:ecs:%s:%s:task-definition/%s:%d", Region, AccountID, family, revision)
}

// CloudFormation fakes DescribeStacks
type CloudFormation struct {
	cloudformationiface.CloudFormationAPI

	Status  string
	Outputs map[string]string
	Err     error
	Calls   int
}

// NewCloudFormation returns a stack in UPDATE_COMPLETE state with the given outputs
func NewCloudFormation(outputs map[string]string) *CloudFormation {
	return &CloudFormation{
		Status:  cloudformation.StackStatusUpdateComplete,
		Outputs: outputs,
	}
}

func (m *CloudFormation) DescribeStacksWithContext(_ aws.Context, in *cloudformation.DescribeStacksInput, _ ...request.Option) (*cloudformation.DescribeStacksOutput, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	stack := &cloudformation.Stack{
		StackName:   in.StackName,
		StackStatus: aws.String(m.Status),
	}
	for k, v := range m.Outputs {
		stack.Outputs = append(stack.Outputs, &cloudformation.Output{
			OutputKey:   aws.String(k),
			OutputValue: aws.String(v),
		})
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []*cloudformation.Stack{stack}}, nil
}

// Counts is the running/desired task count of a fake service
type Counts struct {
	Running int64
	Desired int64
}

// WaitCall records one services-stable waiter invocation
type WaitCall struct {
	Cluster     string
	Service     string
	MaxAttempts int
	Delay       time.Duration
}

// ECS fakes the task definition and service APIs
type ECS struct {
	ecsiface.ECSAPI

	mu sync.Mutex

	// TaskDefinitions holds the active definition per family
	TaskDefinitions map[string]*ecs.TaskDefinition
	Services        map[string]Counts

	DescribeTaskDefinitionErr error
	RegisterErr               error
	DescribeServicesErr       error

	// UpdateServiceFn, when set, decides the result of each UpdateService call
	UpdateServiceFn func(*ecs.UpdateServiceInput) error
	// StableErr maps a service name to the error its waiter returns
	StableErr map[string]error

	Registered []*ecs.RegisterTaskDefinitionInput
	Updates    []*ecs.UpdateServiceInput
	WaitCalls  []WaitCall

	// UpdateCtxErrs holds ctx.Err() as seen by each UpdateService call
	UpdateCtxErrs []error

	DescribeServicesCalls int
}

// NewECS returns an empty fake
func NewECS() *ECS {
	return &ECS{
		TaskDefinitions: map[string]*ecs.TaskDefinition{},
		Services:        map[string]Counts{},
		StableErr:       map[string]error{},
	}
}

// AddTaskDefinition registers a family at the given revision with one
// container per name=image pair.
func (m *ECS) AddTaskDefinition(family string, revision int64, containers map[string]string) *ecs.TaskDefinition {
	td := &ecs.TaskDefinition{
		Family:            aws.String(family),
		Revision:          aws.Int64(revision),
		TaskDefinitionArn: aws.String(TaskDefinitionARN(family, revision)),
		Status:            aws.String(ecs.TaskDefinitionStatusActive),
		Compatibilities:   aws.StringSlice([]string{ecs.CompatibilityEc2, ecs.CompatibilityFargate}),
		RequiresAttributes: []*ecs.Attribute{
			{Name: aws.String("com.amazonaws.ecs.capability.ecr-auth")},
		},
		RequiresCompatibilities: aws.StringSlice([]string{ecs.CompatibilityFargate}),
		RegisteredAt:            aws.Time(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		RegisteredBy:            aws.String("arn:aws:iam::" + AccountID + ":user/deployer"),
		Cpu:                     aws.String("256"),
		Memory:                  aws.String("512"),
		NetworkMode:             aws.String(ecs.NetworkModeAwsvpc),
		ExecutionRoleArn:        aws.String("arn:aws:iam::" + AccountID + ":role/exec"),
	}
	for _, name := range sortedKeys(containers) {
		td.ContainerDefinitions = append(td.ContainerDefinitions, &ecs.ContainerDefinition{
			Name:      aws.String(name),
			Image:     aws.String(containers[name]),
			Essential: aws.Bool(true),
		})
	}
	m.TaskDefinitions[family] = td
	return td
}

// MutatingCalls counts calls that change control plane state
func (m *ECS) MutatingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Registered) + len(m.Updates)
}

func (m *ECS) DescribeTaskDefinitionWithContext(_ aws.Context, in *ecs.DescribeTaskDefinitionInput, _ ...request.Option) (*ecs.DescribeTaskDefinitionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DescribeTaskDefinitionErr != nil {
		return nil, m.DescribeTaskDefinitionErr
	}
	td, ok := m.TaskDefinitions[aws.StringValue(in.TaskDefinition)]
	if !ok {
		return nil, fmt.Errorf("ClientException: Unable to describe task definition %s", aws.StringValue(in.TaskDefinition))
	}
	out := &ecs.DescribeTaskDefinitionOutput{TaskDefinition: td}
	for _, include := range in.Include {
		if aws.StringValue(include) == ecs.TaskDefinitionFieldTags {
			out.Tags = []*ecs.Tag{{Key: aws.String("team"), Value: aws.String("platform")}}
		}
	}
	return out, nil
}

func (m *ECS) RegisterTaskDefinitionWithContext(_ aws.Context, in *ecs.RegisterTaskDefinitionInput, _ ...request.Option) (*ecs.RegisterTaskDefinitionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Registered = append(m.Registered, in)
	if m.RegisterErr != nil {
		return nil, m.RegisterErr
	}

	family := aws.StringValue(in.Family)
	var revision int64 = 1
	if current, ok := m.TaskDefinitions[family]; ok {
		revision = aws.Int64Value(current.Revision) + 1
	}
	td := &ecs.TaskDefinition{
		Family:               in.Family,
		Revision:             aws.Int64(revision),
		TaskDefinitionArn:    aws.String(TaskDefinitionARN(family, revision)),
		Status:               aws.String(ecs.TaskDefinitionStatusActive),
		ContainerDefinitions: in.ContainerDefinitions,
	}
	m.TaskDefinitions[family] = td
	return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: td}, nil
}

func (m *ECS) UpdateServiceWithContext(ctx aws.Context, in *ecs.UpdateServiceInput, _ ...request.Option) (*ecs.UpdateServiceOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Updates = append(m.Updates, in)
	m.UpdateCtxErrs = append(m.UpdateCtxErrs, ctx.Err())
	if m.UpdateServiceFn != nil {
		if err := m.UpdateServiceFn(in); err != nil {
			return nil, err
		}
	}
	return &ecs.UpdateServiceOutput{Service: &ecs.Service{
		ServiceName:    in.Service,
		TaskDefinition: in.TaskDefinition,
	}}, nil
}

func (m *ECS) DescribeServicesWithContext(_ aws.Context, in *ecs.DescribeServicesInput, _ ...request.Option) (*ecs.DescribeServicesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DescribeServicesCalls++
	if m.DescribeServicesErr != nil {
		return nil, m.DescribeServicesErr
	}
	out := &ecs.DescribeServicesOutput{}
	for _, name := range aws.StringValueSlice(in.Services) {
		counts, ok := m.Services[name]
		if !ok {
			out.Failures = append(out.Failures, &ecs.Failure{
				Arn:    aws.String(name),
				Reason: aws.String("MISSING"),
			})
			continue
		}
		out.Services = append(out.Services, &ecs.Service{
			ServiceName:  aws.String(name),
			RunningCount: aws.Int64(counts.Running),
			DesiredCount: aws.Int64(counts.Desired),
		})
	}
	return out, nil
}

func (m *ECS) WaitUntilServicesStableWithContext(_ aws.Context, in *ecs.DescribeServicesInput, opts ...request.WaiterOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := request.Waiter{}
	w.ApplyOptions(opts...)

	var delay time.Duration
	if w.Delay != nil {
		delay = w.Delay(1)
	}
	service := ""
	if len(in.Services) > 0 {
		service = aws.StringValue(in.Services[0])
	}
	m.WaitCalls = append(m.WaitCalls, WaitCall{
		Cluster:     aws.StringValue(in.Cluster),
		Service:     service,
		MaxAttempts: w.MaxAttempts,
		Delay:       delay,
	})
	return m.StableErr[service]
}

// ELBv2 fakes DescribeTargetHealth
type ELBv2 struct {
	elbv2iface.ELBV2API

	// States maps a target group ARN to the state of each registered target
	States map[string][]string
	Err    error
	Calls  int
}

// NewELBv2 returns a fake with no target groups
func NewELBv2() *ELBv2 {
	return &ELBv2{States: map[string][]string{}}
}

func (m *ELBv2) DescribeTargetHealthWithContext(_ aws.Context, in *elbv2.DescribeTargetHealthInput, _ ...request.Option) (*elbv2.DescribeTargetHealthOutput, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := &elbv2.DescribeTargetHealthOutput{}
	for i, state := range m.States[aws.StringValue(in.TargetGroupArn)] {
		out.TargetHealthDescriptions = append(out.TargetHealthDescriptions, &elbv2.TargetHealthDescription{
			Target: &elbv2.TargetDescription{
				Id:   aws.String(fmt.Sprintf("10.0.0.%d", i+1)),
				Port: aws.Int64(3000),
			},
			TargetHealth: &elbv2.TargetHealth{State: aws.String(state)},
		})
	}
	return out, nil
}

// ECR fakes GetAuthorizationToken
type ECR struct {
	ecriface.ECRAPI

	Username      string
	Password      string
	ProxyEndpoint string
	Err           error
	Calls         int
}

// NewECR returns a fake that hands out AWS:<password> tokens
func NewECR(password string) *ECR {
	return &ECR{
		Username:      "AWS",
		Password:      password,
		ProxyEndpoint: "https://" + AccountID + ".dkr.ecr." + Region + ".amazonaws.com",
	}
}

func (m *ECR) GetAuthorizationTokenWithContext(_ aws.Context, _ *ecr.GetAuthorizationTokenInput, _ ...request.Option) (*ecr.GetAuthorizationTokenOutput, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	token := base64.StdEncoding.EncodeToString([]byte(m.Username + ":" + m.Password))
	return &ecr.GetAuthorizationTokenOutput{
		AuthorizationData: []*ecr.AuthorizationData{{
			AuthorizationToken: aws.String(token),
			ProxyEndpoint:      aws.String(m.ProxyEndpoint),
			ExpiresAt:          aws.Time(time.Now().Add(12 * time.Hour)),
		}},
	}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
