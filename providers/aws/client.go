package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Client is the AWS provider client
type Client struct {
	SSM      *ssm.Client
	S3       *s3.Client
	DynamoDB *dynamodb.Client
	EC2      *ec2.Client
	// Bedrock may live in a different region than the rest of the stack.
	Bedrock *bedrockruntime.Client
}

// NewClient creates a new AWS client
func NewClient(ctx context.Context, region, imageRegion string) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	bedrockCfg := cfg.Copy()
	if imageRegion != "" {
		bedrockCfg.Region = imageRegion
	}

	return &Client{
		SSM:      ssm.NewFromConfig(cfg),
		S3:       s3.NewFromConfig(cfg),
		DynamoDB: dynamodb.NewFromConfig(cfg),
		EC2:      ec2.NewFromConfig(cfg),
		Bedrock:  bedrockruntime.NewFromConfig(bedrockCfg),
	}, nil
}
