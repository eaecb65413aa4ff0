// Package sqs implements the backend gateway contract on Amazon SQS.
package sqs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/WAMF/kiss-amazon-sqs-queue/queue"
)

// SQSAPI is the subset of the SQS client used by the gateway (for testing).
type SQSAPI interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
	CreateQueue(ctx context.Context, params *awssqs.CreateQueueInput, optFns ...func(*awssqs.Options)) (*awssqs.CreateQueueOutput, error)
	DeleteQueue(ctx context.Context, params *awssqs.DeleteQueueInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *awssqs.GetQueueAttributesInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueAttributesOutput, error)
}

// Config holds gateway configuration.
type Config struct {
	Region string
	// Endpoint overrides the SQS endpoint for LocalStack/testing.
	Endpoint string
	// AccessKeyID / SecretAccessKey set static credentials (testing only;
	// production uses the default AWS credential chain).
	AccessKeyID     string
	SecretAccessKey string
}

// Gateway implements queue.Gateway on Amazon SQS.
type Gateway struct {
	client SQSAPI
}

var _ queue.Gateway = (*Gateway)(nil)

// New creates a gateway using the default AWS configuration chain, or static
// credentials against a custom endpoint when one is configured.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.Info().
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("SQS gateway ready")
	return &Gateway{client: client}, nil
}

// NewWithClient wraps an existing SQS client (used by tests).
func NewWithClient(client SQSAPI) *Gateway {
	return &Gateway{client: client}
}

// Send enqueues one message and returns the SQS-assigned message id.
func (g *Gateway) Send(ctx context.Context, queueRef, body string, attributes map[string]string) (string, error) {
	input := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(queueRef),
		MessageBody: aws.String(body),
	}
	if len(attributes) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			input.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	out, err := g.client.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to send SQS message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Receive polls for at most one message. A nil message means the queue had
// nothing available within the wait window.
func (g *Gateway) Receive(ctx context.Context, queueRef string, leaseSeconds, waitSeconds int32) (*queue.RawMessage, error) {
	input := &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueRef),
		MaxNumberOfMessages: 1,
		VisibilityTimeout:   leaseSeconds,
		WaitTimeSeconds:     waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameSentTimestamp,
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameApproximateFirstReceiveTimestamp,
		},
	}

	out, err := g.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive SQS message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	raw := &queue.RawMessage{
		ID:         aws.ToString(msg.MessageId),
		Body:       aws.ToString(msg.Body),
		LeaseToken: aws.ToString(msg.ReceiptHandle),
		Attributes: make(map[string]string, len(msg.Attributes)),
	}
	for k, v := range msg.Attributes {
		raw.Attributes[k] = v
	}
	return raw, nil
}

// Delete removes the message held by the receipt handle.
func (g *Gateway) Delete(ctx context.Context, queueRef, leaseToken string) error {
	_, err := g.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueRef),
		ReceiptHandle: aws.String(leaseToken),
	})
	if err != nil {
		return fmt.Errorf("failed to delete SQS message: %w", err)
	}
	return nil
}

// ResetLease changes the message visibility timeout; zero makes the message
// immediately visible again.
func (g *Gateway) ResetLease(ctx context.Context, queueRef, leaseToken string, seconds int32) error {
	_, err := g.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(queueRef),
		ReceiptHandle:     aws.String(leaseToken),
		VisibilityTimeout: seconds,
	})
	if err != nil {
		return fmt.Errorf("failed to change SQS message visibility: %w", err)
	}
	return nil
}

// CreateQueue provisions a queue and returns its URL.
func (g *Gateway) CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error) {
	input := &awssqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attributes,
	}
	out, err := g.client.CreateQueue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create SQS queue %s: %w", name, err)
	}

	log.Debug().
		Str("queue", name).
		Str("queueURL", aws.ToString(out.QueueUrl)).
		Msg("SQS queue created")
	return aws.ToString(out.QueueUrl), nil
}

// DeleteQueue removes the queue.
func (g *Gateway) DeleteQueue(ctx context.Context, queueRef string) error {
	_, err := g.client.DeleteQueue(ctx, &awssqs.DeleteQueueInput{
		QueueUrl: aws.String(queueRef),
	})
	if err != nil {
		if isQueueMissing(err) {
			return queue.ErrQueueDoesNotExist
		}
		return fmt.Errorf("failed to delete SQS queue: %w", err)
	}
	return nil
}

// QueueRef resolves a queue name to its URL.
func (g *Gateway) QueueRef(ctx context.Context, name string) (string, error) {
	out, err := g.client.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		if isQueueMissing(err) {
			return "", queue.ErrQueueDoesNotExist
		}
		return "", fmt.Errorf("failed to resolve SQS queue %s: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// Attributes reads the named queue attributes.
func (g *Gateway) Attributes(ctx context.Context, queueRef string, names []string) (map[string]string, error) {
	attrNames := make([]types.QueueAttributeName, 0, len(names))
	for _, n := range names {
		attrNames = append(attrNames, types.QueueAttributeName(n))
	}

	out, err := g.client.GetQueueAttributes(ctx, &awssqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueRef),
		AttributeNames: attrNames,
	})
	if err != nil {
		if isQueueMissing(err) {
			return nil, queue.ErrQueueDoesNotExist
		}
		return nil, fmt.Errorf("failed to get SQS queue attributes: %w", err)
	}
	return out.Attributes, nil
}

// isQueueMissing reports whether the error is SQS's nonexistent-queue fault.
func isQueueMissing(err error) bool {
	var missing *types.QueueDoesNotExist
	return errors.As(err, &missing)
}
