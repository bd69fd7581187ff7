package pub

import (
	"context"
	"fetchguard/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNS implements ports.Publisher on an SNS topic.
type SNS struct{ cli *sns.Client }

func NewSNS(c *sns.Client) *SNS { return &SNS{cli: c} }

func (s *SNS) PublishRaw(ctx context.Context, arn string, payload []byte) error {
	if arn == "" {
		return types.Err(types.ErrInvalidConfig, nil, "sns: empty topic arn")
	}
	_, err := s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(arn),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
		},
	})
	return err
}
