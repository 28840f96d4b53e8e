package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// GetParameters accepts at most ten names per call.
const ssmBatchLimit = 10

type ssmAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves *_SSM_PARAM references against Parameter Store.
// The SDK client is built on first use, so a function with no secret
// references never loads AWS credentials.
type SSMProvider struct {
	region   string
	endpoint string

	once    sync.Once
	api     ssmAPI
	initErr error
}

// NewSSMProvider returns a provider for region. A non-empty endpoint
// (LocalStack) overrides the resolved service URL.
func NewSSMProvider(region, endpoint string) *SSMProvider {
	return &SSMProvider{region: region, endpoint: endpoint}
}

func newSSMProviderWithClient(region string, api ssmAPI) *SSMProvider {
	p := &SSMProvider{region: region, api: api}
	p.once.Do(func() {})
	return p
}

func (p *SSMProvider) client(ctx context.Context) (ssmAPI, error) {
	p.once.Do(func() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
		if err != nil {
			p.initErr = fmt.Errorf("ssm: load aws config for %s: %w", p.region, err)
			return
		}
		p.api = ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			if p.endpoint != "" {
				o.BaseEndpoint = aws.String(p.endpoint)
			}
		})
	})
	return p.api, p.initErr
}

// GetParametersBatch decrypts every path in keys. Paths Parameter Store
// does not know are collected across batches and reported together.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	api, err := p.client(ctx)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for names := range slices.Chunk(keys, ssmBatchLimit) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ssm: resolving %d parameters: %w", len(keys), err)
		}

		out, err := api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("ssm: get %s: %w", strings.Join(names, ","), err)
		}
		for _, param := range out.Parameters {
			if name, v := aws.ToString(param.Name), param.Value; name != "" && v != nil {
				values[name] = *v
			}
		}
		unknown = append(unknown, out.InvalidParameters...)
	}

	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("ssm: unknown parameters %s", strings.Join(unknown, ", "))
	}
	return values, nil
}
