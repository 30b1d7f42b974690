package sns_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/sns"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awssns.PublishOutput), args.Error(1)
}

func newClient(t *testing.T, api sns.API) *sns.Client {
	t.Helper()
	c, err := sns.New(context.Background(), sns.Config{Region: "eu-west-1", SMSType: "Transactional", SMSSenderID: "Pulse"}, sns.WithAPI(api))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresRegion(t *testing.T) {
	t.Parallel()
	_, err := sns.New(context.Background(), sns.Config{})
	assert.ErrorIs(t, err, sns.ErrInvalidConfig)
}

func TestSendSMS(t *testing.T) {
	t.Parallel()

	t.Run("publishes to phone number", func(t *testing.T) {
		t.Parallel()
		api := &MockAPI{}
		api.On("Publish", mock.Anything, mock.MatchedBy(func(in *awssns.PublishInput) bool {
			return aws.ToString(in.PhoneNumber) == "+15550100" &&
				aws.ToString(in.Message) == "hello" &&
				aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue) == "Pulse"
		})).Return(&awssns.PublishOutput{MessageId: aws.String("m1")}, nil).Once()

		require.NoError(t, newClient(t, api).SendSMS(context.Background(), "+15550100", "hello"))
		api.AssertExpectations(t)
	})

	t.Run("rejects invalid number without calling aws", func(t *testing.T) {
		t.Parallel()
		api := &MockAPI{}
		err := newClient(t, api).SendSMS(context.Background(), "555-0100", "hello")
		assert.ErrorIs(t, err, sns.ErrInvalidAddress)
		api.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

func TestSendPush(t *testing.T) {
	t.Parallel()

	api := &MockAPI{}
	var captured *awssns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*awssns.PublishInput) }).
		Return(&awssns.PublishOutput{}, nil).Once()

	err := newClient(t, api).SendPush(context.Background(), "arn:aws:sns:endpoint/1", sns.Push{
		Title: "New message",
		Body:  "bob: hi",
		Data:  map[string]any{"conversationId": "c1"},
	})
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "json", aws.ToString(captured.MessageStructure))

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(captured.Message)), &doc))
	assert.Equal(t, "bob: hi", doc["default"])

	var fcm map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc["GCM"]), &fcm))
	assert.Equal(t, "c1", fcm["data"].(map[string]any)["conversationId"])

	assert.ErrorIs(t, newClient(t, api).SendPush(context.Background(), "", sns.Push{}), sns.ErrInvalidAddress)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "endpoint disabled", err: &types.EndpointDisabledException{Message: aws.String("disabled")}, want: sns.ErrEndpointDisabled},
		{name: "invalid parameter", err: &smithy.GenericAPIError{Code: "InvalidParameter"}, want: sns.ErrInvalidAddress},
		{name: "throttled", err: &smithy.GenericAPIError{Code: "Throttling"}, want: sns.ErrThrottled},
		{name: "other", err: errors.New("network down"), want: sns.ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &MockAPI{}
			api.On("Publish", mock.Anything, mock.Anything).Return(nil, tt.err)
			err := newClient(t, api).SendSMS(context.Background(), "+15550100", "x")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
