package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/errors"
)

// nonExistentQueueCode is returned by the query protocol for missing queues
const nonExistentQueueCode = "AWS.SimpleQueueService.NonExistentQueue"

// sqsAPI is the subset of the SQS client used here
type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSQueue reports the approximate backlog of one SQS queue
type SQSQueue struct {
	client sqsAPI
	url    string
}

// NewSQSQueue loads the default AWS credential chain and resolves the queue
// URL. A queue name is looked up once here and never again.
func NewSQSQueue(ctx context.Context, opts config.QueueOptions) (*SQSQueue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, errors.Config("unable to load AWS SDK config: %v", err)
	}

	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return newSQSQueue(ctx, client, opts)
}

func newSQSQueue(ctx context.Context, client sqsAPI, opts config.QueueOptions) (*SQSQueue, error) {
	q := &SQSQueue{client: client, url: opts.URL}
	if q.url != "" {
		return q, nil
	}

	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(opts.Name)})
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to resolve queue %q", opts.Name), err)
	}
	if out.QueueUrl == nil || *out.QueueUrl == "" {
		return nil, errors.NotFound(fmt.Sprintf("queue %q has no URL", opts.Name), nil)
	}
	q.url = *out.QueueUrl
	return q, nil
}

// URL returns the resolved queue URL
func (q *SQSQueue) URL() string {
	return q.url
}

// ApproximateMessageCount returns ApproximateNumberOfMessages for the queue
func (q *SQSQueue) ApproximateMessageCount(ctx context.Context) (uint64, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, classify("failed to get queue attributes", err)
	}

	raw, ok := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	if !ok {
		return 0, errors.Unavailable("queue attributes lack ApproximateNumberOfMessages", nil)
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Unavailable(fmt.Sprintf("unexpected message count %q", raw), err)
	}
	return count, nil
}

func classify(msg string, err error) error {
	var missing *types.QueueDoesNotExist
	if errors.As(err, &missing) {
		return errors.NotFound(msg, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == nonExistentQueueCode {
		return errors.NotFound(msg, err)
	}
	return errors.Unavailable(msg, err)
}
