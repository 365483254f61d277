package queue

import (
	"context"
	"net"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/errors"
)

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/jobs"

type mockSQS struct {
	urlCalls   int
	attrCalls  int
	urlErr     error
	attrErr    error
	attributes map[string]string
	lastInput  *sqs.GetQueueAttributesInput
}

func (m *mockSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	m.urlCalls++
	if m.urlErr != nil {
		return nil, m.urlErr
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs.local/000000000000/" + aws.ToString(params.QueueName))}, nil
}

func (m *mockSQS) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	m.attrCalls++
	m.lastInput = params
	if m.attrErr != nil {
		return nil, m.attrErr
	}
	return &sqs.GetQueueAttributesOutput{Attributes: m.attributes}, nil
}

func TestNewSQSQueue_UsesURLWithoutLookup(t *testing.T) {
	mock := &mockSQS{}
	q, err := newSQSQueue(context.Background(), mock, config.QueueOptions{URL: testQueueURL, Name: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, testQueueURL, q.URL())
	assert.Equal(t, 0, mock.urlCalls)
}

func TestNewSQSQueue_ResolvesNameOnce(t *testing.T) {
	mock := &mockSQS{attributes: map[string]string{"ApproximateNumberOfMessages": "3"}}
	q, err := newSQSQueue(context.Background(), mock, config.QueueOptions{Name: "jobs"})
	require.NoError(t, err)
	assert.Equal(t, "https://sqs.local/000000000000/jobs", q.URL())

	for i := 0; i < 3; i++ {
		_, err := q.ApproximateMessageCount(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, mock.urlCalls)
	assert.Equal(t, 3, mock.attrCalls)
}

func TestNewSQSQueue_MissingQueueIsNotFound(t *testing.T) {
	mock := &mockSQS{urlErr: &types.QueueDoesNotExist{Message: aws.String("no such queue")}}
	_, err := newSQSQueue(context.Background(), mock, config.QueueOptions{Name: "jobs"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Contains(t, err.Error(), `failed to resolve queue "jobs"`)
}

func TestSQSQueue_ApproximateMessageCount(t *testing.T) {
	mock := &mockSQS{attributes: map[string]string{"ApproximateNumberOfMessages": "1234"}}
	q, err := newSQSQueue(context.Background(), mock, config.QueueOptions{URL: testQueueURL})
	require.NoError(t, err)

	count, err := q.ApproximateMessageCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), count)

	require.NotNil(t, mock.lastInput)
	assert.Equal(t, testQueueURL, aws.ToString(mock.lastInput.QueueUrl))
	assert.Equal(t, []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages}, mock.lastInput.AttributeNames)
}

func TestSQSQueue_ApproximateMessageCountErrors(t *testing.T) {
	tests := []struct {
		name       string
		attributes map[string]string
		err        error
		kind       errors.Kind
	}{
		{
			name: "network failure",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: assert.AnError},
			kind: errors.KindBackendUnavailable,
		},
		{
			name: "throttled",
			err:  &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			kind: errors.KindBackendUnavailable,
		},
		{
			name: "queue deleted",
			err:  &smithy.GenericAPIError{Code: nonExistentQueueCode, Message: "gone"},
			kind: errors.KindNotFound,
		},
		{
			name: "typed queue deleted",
			err:  &types.QueueDoesNotExist{Message: aws.String("gone")},
			kind: errors.KindNotFound,
		},
		{
			name:       "attribute missing",
			attributes: map[string]string{},
			kind:       errors.KindBackendUnavailable,
		},
		{
			name:       "attribute not a number",
			attributes: map[string]string{"ApproximateNumberOfMessages": "many"},
			kind:       errors.KindBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSQS{attributes: tt.attributes, attrErr: tt.err}
			q, err := newSQSQueue(context.Background(), mock, config.QueueOptions{URL: testQueueURL})
			require.NoError(t, err)

			_, err = q.ApproximateMessageCount(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err), err.Error())
		})
	}
}
