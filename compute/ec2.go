package compute

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/benbjohnson/clock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// KeyTag is the instance tag carrying the unit key. All instance lookups go
// through this tag, never through positional naming.
const KeyTag = "npa:publisher-key"

// AppTag marks instances managed by this orchestrator deployment.
const AppTag = "npa:app"

const invalidInstanceIDNotFound = "InvalidInstanceID.NotFound"

// Config describes how publisher instances are launched.
type Config struct {
	AMIID               string
	InstanceType        string
	SubnetIDs           []string
	SecurityGroupIDs    []string
	InstanceProfileName string

	// BootstrapScript is an optional user-data script, at most a metrics-agent
	// install. It must never embed the registration token: user data is
	// readable through the instance-introspection API.
	BootstrapScript string

	RootVolumeSizeGiB int64

	// App namespaces tags and secret paths for this deployment.
	App string

	// Termination polling.
	PollInterval    time.Duration
	MaxPollAttempts int

	Clock clock.Clock
	Log   *slog.Logger
}

// EC2Provisioner owns publisher instance lifecycle on EC2. Instances are
// placed in egress-only subnets and carry an instance profile scoped to the
// management agent's needs; the profile has no permission to read
// registration tokens.
type EC2Provisioner struct {
	client ec2iface.EC2API
	cfg    Config
	clk    clock.Clock
	log    *slog.Logger
}

// NewEC2Provisioner creates a provisioner from the given EC2 client and config.
func NewEC2Provisioner(client ec2iface.EC2API, cfg Config) (*EC2Provisioner, error) {
	if cfg.AMIID == "" {
		return nil, errors.New("AMI id is required")
	}
	if len(cfg.SubnetIDs) == 0 {
		return nil, errors.New("at least one subnet is required")
	}
	if cfg.InstanceType == "" {
		cfg.InstanceType = "t3.medium"
	}
	if cfg.RootVolumeSizeGiB == 0 {
		cfg.RootVolumeSizeGiB = 40
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = 40
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &EC2Provisioner{client: client, cfg: cfg, clk: clk, log: log}, nil
}

// Launch creates the unit's instance. The subnet is chosen by the unit's
// ordinal so instances spread across availability zones deterministically.
func (p *EC2Provisioner) Launch(ctx context.Context, unit interfaces.PublisherUnit) (*interfaces.ComputeInstance, error) {
	subnetID := SubnetForOrdinal(p.cfg.SubnetIDs, unit.Ordinal)

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(p.cfg.AMIID),
		InstanceType: aws.String(p.cfg.InstanceType),
		MinCount:     aws.Int64(1),
		MaxCount:     aws.Int64(1),
		SubnetId:     aws.String(subnetID),
		BlockDeviceMappings: []*ec2.BlockDeviceMapping{
			{
				DeviceName: aws.String("/dev/sda1"),
				Ebs: &ec2.EbsBlockDevice{
					VolumeSize:          aws.Int64(p.cfg.RootVolumeSizeGiB),
					VolumeType:          aws.String(ec2.VolumeTypeGp3),
					Encrypted:           aws.Bool(true),
					DeleteOnTermination: aws.Bool(true),
				},
			},
		},
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeInstance),
				Tags: []*ec2.Tag{
					{Key: aws.String("Name"), Value: aws.String(unit.DisplayName)},
					{Key: aws.String(KeyTag), Value: aws.String(unit.Key.String())},
					{Key: aws.String(AppTag), Value: aws.String(p.cfg.App)},
				},
			},
		},
	}
	if len(p.cfg.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = aws.StringSlice(p.cfg.SecurityGroupIDs)
	}
	if p.cfg.InstanceProfileName != "" {
		input.IamInstanceProfile = &ec2.IamInstanceProfileSpecification{
			Name: aws.String(p.cfg.InstanceProfileName),
		}
	}
	if p.cfg.BootstrapScript != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(p.cfg.BootstrapScript)))
	}

	result, err := p.client.RunInstancesWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to launch instance for unit %s: %w", unit.Key, err)
	}
	if len(result.Instances) == 0 {
		return nil, fmt.Errorf("no instance returned for unit %s", unit.Key)
	}

	instance := result.Instances[0]
	p.log.Info("Launched publisher instance",
		slog.String("key", unit.Key.String()),
		slog.String("instance_id", aws.StringValue(instance.InstanceId)),
		slog.String("subnet_id", subnetID))

	return &interfaces.ComputeInstance{
		InstanceID:      aws.StringValue(instance.InstanceId),
		State:           mapInstanceState(instance.State),
		ManagementState: interfaces.ManagementUnknown,
	}, nil
}

// Terminate requests termination. Instances that no longer exist are treated
// as already terminated.
func (p *EC2Provisioner) Terminate(ctx context.Context, instanceID string) error {
	_, err := p.client.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []*string{aws.String(instanceID)},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == invalidInstanceIDNotFound {
			return nil
		}
		return fmt.Errorf("failed to terminate instance %s: %w", instanceID, err)
	}

	p.log.Info("Requested instance termination", slog.String("instance_id", instanceID))
	return nil
}

// WaitTerminated blocks until the instance is terminated or gone, bounded by
// the configured attempt ceiling.
func (p *EC2Provisioner) WaitTerminated(ctx context.Context, instanceID string) error {
	for attempt := 1; attempt <= p.cfg.MaxPollAttempts; attempt++ {
		state, err := p.describeState(ctx, instanceID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil
			}
			return err
		}
		if state == interfaces.InstanceTerminated {
			p.log.Debug("Instance terminated",
				slog.String("instance_id", instanceID),
				slog.Int("attempts", attempt))
			return nil
		}

		if attempt == p.cfg.MaxPollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clk.After(p.cfg.PollInterval):
		}
	}
	return fmt.Errorf("instance %s still not terminated after %d attempts: %w",
		instanceID, p.cfg.MaxPollAttempts, interfaces.ErrTimedOut)
}

// Find looks up the unit's live instance by key tag.
func (p *EC2Provisioner) Find(ctx context.Context, key interfaces.UnitKey) (*interfaces.ComputeInstance, error) {
	result, err := p.client.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("tag:" + KeyTag), Values: []*string{aws.String(key.String())}},
			{
				Name: aws.String("instance-state-name"),
				Values: aws.StringSlice([]string{
					ec2.InstanceStateNamePending,
					ec2.InstanceStateNameRunning,
					ec2.InstanceStateNameStopping,
					ec2.InstanceStateNameStopped,
				}),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances for key %s: %w", key, err)
	}

	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			return &interfaces.ComputeInstance{
				InstanceID:      aws.StringValue(instance.InstanceId),
				State:           mapInstanceState(instance.State),
				ManagementState: interfaces.ManagementUnknown,
			}, nil
		}
	}
	return nil, fmt.Errorf("no live instance for key %s: %w", key, interfaces.ErrNotFound)
}

func (p *EC2Provisioner) describeState(ctx context.Context, instanceID string) (interfaces.InstanceState, error) {
	result, err := p.client.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []*string{aws.String(instanceID)},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == invalidInstanceIDNotFound {
			return interfaces.InstanceTerminated, interfaces.ErrNotFound
		}
		return 0, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			return mapInstanceState(instance.State), nil
		}
	}
	return interfaces.InstanceTerminated, interfaces.ErrNotFound
}

func mapInstanceState(state *ec2.InstanceState) interfaces.InstanceState {
	if state == nil {
		return interfaces.InstancePending
	}
	switch aws.StringValue(state.Name) {
	case ec2.InstanceStateNameRunning:
		return interfaces.InstanceRunning
	case ec2.InstanceStateNameTerminated:
		return interfaces.InstanceTerminated
	default:
		return interfaces.InstancePending
	}
}
