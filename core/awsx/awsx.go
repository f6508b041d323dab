// Package awsx builds AWS SDK clients from process configuration.
package awsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	coreconfig "github.com/m3rciful/formbot/core/config"
)

// Clients groups the SDK clients the bot uses.
type Clients struct {
	cfg      aws.Config
	endpoint string
}

// Load resolves credentials and region through the default chain. A
// configured region overrides the environment.
func Load(ctx context.Context, cfg coreconfig.AWSConfig) (*Clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if r := strings.TrimSpace(cfg.Region); r != "" {
		opts = append(opts, awsconfig.WithRegion(r))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("awsx: load config: %w", err)
	}
	return &Clients{cfg: awsCfg, endpoint: strings.TrimSpace(cfg.Endpoint)}, nil
}

// Region reports the resolved region.
func (c *Clients) Region() string {
	return c.cfg.Region
}

// DynamoDB returns a DynamoDB client honoring the endpoint override.
func (c *Clients) DynamoDB() *dynamodb.Client {
	return dynamodb.NewFromConfig(c.cfg, func(o *dynamodb.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
}

// SSM returns a Parameter Store client honoring the endpoint override.
func (c *Clients) SSM() *ssm.Client {
	return ssm.NewFromConfig(c.cfg, func(o *ssm.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
}
