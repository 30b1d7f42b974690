package sns

type Config struct {
	Region          string `env:"SNS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"SNS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SNS_SECRET_ACCESS_KEY"`
	Endpoint        string `env:"SNS_ENDPOINT"` // local emulators such as localstack
	SMSSenderID     string `env:"SNS_SMS_SENDER_ID"`
	SMSType         string `env:"SNS_SMS_TYPE" envDefault:"Transactional"`
}
