// Package sns sends mobile push notifications and SMS through Amazon SNS.
//
// Push messages target a platform endpoint ARN (the identity's push token)
// and are published with a JSON message structure carrying both the FCM and
// APNs payloads. SMS messages are published directly to an E.164 phone
// number. SNS API errors are classified so callers can tell a disabled
// endpoint or an invalid number apart from a throttled request.
//
//	client, err := sns.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	err = client.SendSMS(ctx, "+15550100", "Your code is 1234")
package sns
