// Package awsutil constructs the AWS service clients used by the
// orchestrator. All consumers depend on the service interface types
// (ec2iface, ssmiface) so tests can substitute fakes.
package awsutil

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
)

// ClientSet bundles the AWS API clients needed for compute provisioning,
// secret storage, and remote execution.
type ClientSet struct {
	EC2 ec2iface.EC2API
	SSM ssmiface.SSMAPI
}

// NewClientSet creates AWS clients for the given region. If accessKeyID and
// secretAccessKey are empty, the SDK's default credential chain is used
// (instance profile, env, shared config). An endpoint override is supported
// for local stacks.
func NewClientSet(region, accessKeyID, secretAccessKey, endpoint string) (*ClientSet, error) {
	config := aws.NewConfig()
	config = config.WithRegion(region)
	config = config.WithMaxRetries(3)

	if accessKeyID != "" && secretAccessKey != "" {
		config = config.WithCredentials(credentials.NewStaticCredentials(accessKeyID, secretAccessKey, ""))
	}
	if endpoint != "" {
		config = config.WithEndpoint(endpoint)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &ClientSet{
		EC2: ec2.New(sess),
		SSM: ssm.New(sess),
	}, nil
}
