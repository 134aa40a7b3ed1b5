package pub

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"
)

const auditSource = "zwop"

// SNS publishes audit events as JSON messages. The event type, when the payload carries
// one, is copied into a message attribute so subscriptions can filter on it.
type SNS struct {
	cli *sns.Client
}

func NewSNS(c *sns.Client) *SNS { return &SNS{cli: c} }

func (s *SNS) PublishRaw(ctx context.Context, arn string, payload []byte) error {
	_, err := s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(arn),
		Message:           aws.String(string(payload)),
		MessageAttributes: messageAttributes(payload),
	})
	return err
}

func messageAttributes(payload []byte) map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{
		"content-type": stringAttr("application/json"),
		"source":       stringAttr(auditSource),
	}
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(payload, &head) == nil && head.Type != "" {
		attrs["event-type"] = stringAttr(head.Type)
	}
	return attrs
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

type nopPub struct{}

// NewNop returns a Publisher that drops every event.
func NewNop() *nopPub { return &nopPub{} }

func (nopPub) PublishRaw(context.Context, string, []byte) error { return nil }
