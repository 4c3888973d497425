package remotecmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/benbjohnson/clock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/metrics"
)

// DefaultHeartbeatInterval and DefaultHeartbeatAttempts bound the wait for a
// fresh instance's management agent: 15s x 40 gives a 10-minute ceiling,
// which covers boot plus agent registration on slow days.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatAttempts = 40
)

// PollerConfig configures the heartbeat poller.
type PollerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int

	// Clock is injectable so tests run without wall-clock delays.
	Clock clock.Clock
	Log   *slog.Logger
}

// Poller blocks until a newly created instance's remote-management agent
// reports a heartbeat. Instance boot and agent startup vary independently
// from tens of seconds to several minutes, so this is a retried poll with a
// hard attempt ceiling, never a one-shot check.
type Poller struct {
	client ssmiface.SSMAPI
	cfg    PollerConfig
	clk    clock.Clock
	log    *slog.Logger
}

// NewPoller creates a heartbeat poller.
func NewPoller(client ssmiface.SSMAPI, cfg PollerConfig) *Poller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultHeartbeatAttempts
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Poller{client: client, cfg: cfg, clk: clk, log: log}
}

// WaitOnline returns nil on the first observed heartbeat and ErrTimedOut
// after MaxAttempts consecutive non-heartbeat observations. Context
// cancellation stops polling promptly and leaves the instance in its
// last-observed state.
func (p *Poller) WaitOnline(ctx context.Context, instanceID string) error {
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		metrics.PollAttempts.WithLabelValues("heartbeat").Inc()

		online, err := p.observe(ctx, instanceID)
		if err != nil {
			// Describe failures right after launch are eventual-consistency
			// lag; keep polling within the same ceiling.
			p.log.Debug("Heartbeat observation failed",
				slog.String("instance_id", instanceID),
				slog.Int("attempt", attempt),
				"err", err)
		} else if online {
			p.log.Info("Instance management agent online",
				slog.String("instance_id", instanceID),
				slog.Int("attempts", attempt))
			return nil
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clk.After(p.cfg.PollInterval):
		}
	}

	return fmt.Errorf("no heartbeat from instance %s after %d attempts: %w",
		instanceID, p.cfg.MaxAttempts, interfaces.ErrTimedOut)
}

func (p *Poller) observe(ctx context.Context, instanceID string) (bool, error) {
	result, err := p.client.DescribeInstanceInformationWithContext(ctx, &ssm.DescribeInstanceInformationInput{
		Filters: []*ssm.InstanceInformationStringFilter{
			{Key: aws.String("InstanceIds"), Values: []*string{aws.String(instanceID)}},
		},
	})
	if err != nil {
		return false, err
	}

	for _, info := range result.InstanceInformationList {
		if aws.StringValue(info.PingStatus) == ssm.PingStatusOnline {
			return true, nil
		}
	}
	return false, nil
}
