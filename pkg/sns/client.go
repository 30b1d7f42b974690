package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

// API is the subset of the SNS client used here.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Client publishes push and SMS messages.
type Client struct {
	api API
	cfg Config
}

type Option func(*options)

type options struct {
	api        API
	loadOpts   []func(*awsconfig.LoadOptions) error
	clientOpts []func(*sns.Options)
}

// WithAPI injects a pre-built SNS client.
func WithAPI(api API) Option {
	return func(o *options) { o.api = api }
}

// WithLoadOption adds an AWS config load option.
func WithLoadOption(fn func(*awsconfig.LoadOptions) error) Option {
	return func(o *options) { o.loadOpts = append(o.loadOpts, fn) }
}

// WithClientOption adds an SNS client option.
func WithClientOption(fn func(*sns.Options)) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, fn) }
}

// New builds a Client. Static credentials are used when both keys are set;
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: region is required", ErrInvalidConfig)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.api != nil {
		return &Client{api: o.api, cfg: cfg}, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	loadOpts = append(loadOpts, o.loadOpts...)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadConfig, err)
	}

	api := sns.NewFromConfig(awsCfg, func(so *sns.Options) {
		if cfg.Endpoint != "" {
			so.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range o.clientOpts {
			fn(so)
		}
	})
	return &Client{api: api, cfg: cfg}, nil
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SendSMS publishes body to an E.164 phone number.
func (c *Client) SendSMS(ctx context.Context, phone, body string) error {
	if !e164.MatchString(phone) {
		return fmt.Errorf("%w: phone number %q is not E.164", ErrInvalidAddress, phone)
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String(c.cfg.SMSType)},
	}
	if c.cfg.SMSSenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(c.cfg.SMSSenderID),
		}
	}

	_, err := c.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	return classify(err)
}

// Push is a mobile push message.
type Push struct {
	Title string
	Body  string
	Data  map[string]any
}

// SendPush publishes p to a platform endpoint ARN.
func (c *Client) SendPush(ctx context.Context, endpointARN string, p Push) error {
	if endpointARN == "" {
		return fmt.Errorf("%w: empty endpoint arn", ErrInvalidAddress)
	}

	msg, err := pushMessage(p)
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	_, err = c.api.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpointARN),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	return classify(err)
}

// pushMessage builds the per-platform JSON document SNS expects when
// MessageStructure is "json". Each platform value is itself a JSON string.
func pushMessage(p Push) (string, error) {
	fcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": p.Title, "body": p.Body},
		"data":         p.Data,
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]any{
		"aps":  map[string]any{"alert": map[string]string{"title": p.Title, "body": p.Body}, "sound": "default"},
		"data": p.Data,
	})
	if err != nil {
		return "", err
	}
	doc, err := json.Marshal(map[string]string{
		"default":      p.Body,
		"GCM":          string(fcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var disabled *types.EndpointDisabledException
	if errors.As(err, &disabled) {
		return errors.Join(ErrEndpointDisabled, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "EndpointDisabled":
			return errors.Join(ErrEndpointDisabled, err)
		case "InvalidParameter", "InvalidParameterValue":
			return errors.Join(ErrInvalidAddress, err)
		case "Throttling", "ThrottledException", "KMSThrottlingException":
			return errors.Join(ErrThrottled, err)
		}
	}
	return errors.Join(ErrPublishFailed, err)
}
