/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provider

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

// disableRecoveryDays is the soft-delete window used when a secret is
// disabled; AWS models disable as a recoverable deletion.
const disableRecoveryDays = 30

// AWSClient drives Secrets Manager for secrets and SSM Parameter Store for
// properties.
type AWSClient struct {
	secrets *secretsmanager.Client
	ssm     *ssm.Client
	region  string
	opts    Options
}

// NewAWS builds the client set for one resource. endpoint routes both
// services at a mock when non-empty; the spec's optional static credentials
// override the default chain otherwise.
func NewAWS(ctx context.Context, cfg *v1alpha1.AWSProvider, opts Options, endpoint string) (*AWSClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	switch {
	case endpoint != "":
		// Contract mocks answer deterministically; retries only slow the
		// verification down.
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("pact", "pact", "")),
			awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }))
	case opts.Credentials["access_key_id"] != nil:
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				string(opts.Credentials["access_key_id"]),
				string(opts.Credentials["secret_access_key"]),
				string(opts.Credentials["session_token"]),
			)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &AWSClient{
		secrets: secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
		ssm: ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
		region: cfg.Region,
		opts:   opts,
	}, nil
}

func (c *AWSClient) Name() string { return "aws" }

// Close satisfies io.Closer; the AWS clients share the config's transport
// and hold nothing to release.
func (c *AWSClient) Close() error { return nil }

func (c *AWSClient) UpsertSecret(ctx context.Context, name, value string) (bool, error) {
	if err := checkSize(name, value, MaxSecretBytesAWS); err != nil {
		return false, err
	}

	current, found, err := c.GetSecretValue(ctx, name)
	if err != nil {
		return false, err
	}
	if found && current == value {
		return false, nil
	}

	if !found {
		_, err := c.secrets.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(value),
			Tags:         c.tags(),
		})
		if err == nil {
			return true, nil
		}
		var exists *smtypes.ResourceExistsException
		if !errors.As(err, &exists) {
			return false, classifyAWS("creating", name, err)
		}
		// Lost a create race; fall through to a plain put.
	}

	if _, err := c.secrets.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	}); err != nil {
		return false, classifyAWS("putting value for", name, err)
	}
	return true, nil
}

func (c *AWSClient) GetSecretValue(ctx context.Context, name string) (string, bool, error) {
	out, err := c.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		// A secret scheduled for deletion rejects reads; that is the
		// disabled state, not an error.
		var invalid *smtypes.InvalidRequestException
		if errors.As(err, &invalid) {
			return "", false, nil
		}
		return "", false, classifyAWS("reading", name, err)
	}
	if out.SecretString != nil {
		return *out.SecretString, true, nil
	}
	return string(out.SecretBinary), true, nil
}

func (c *AWSClient) DisableSecret(ctx context.Context, name string) (bool, error) {
	out, err := c.secrets.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(name)})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, classifyAWS("describing", name, err)
	}
	if out.DeletedDate != nil {
		return false, nil
	}

	if _, err := c.secrets.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:             aws.String(name),
		RecoveryWindowInDays: aws.Int64(disableRecoveryDays),
	}); err != nil {
		return false, classifyAWS("disabling", name, err)
	}
	return true, nil
}

func (c *AWSClient) EnableSecret(ctx context.Context, name string) (bool, error) {
	out, err := c.secrets.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(name)})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, classifyAWS("describing", name, err)
	}
	if out.DeletedDate == nil {
		return false, nil
	}

	if _, err := c.secrets.RestoreSecret(ctx, &secretsmanager.RestoreSecretInput{SecretId: aws.String(name)}); err != nil {
		return false, classifyAWS("restoring", name, err)
	}
	return true, nil
}

func (c *AWSClient) DeleteSecret(ctx context.Context, name string) error {
	_, err := c.secrets.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return classifyAWS("deleting", name, err)
	}
	return nil
}

func (c *AWSClient) UpsertConfig(ctx context.Context, key, value string) (bool, error) {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.UpsertSecret(ctx, key, value)
	}
	if err := checkSize(key, value, MaxSecretBytesAWS); err != nil {
		return false, err
	}

	name := c.parameterName(key)
	current, found, err := c.GetConfigValue(ctx, key)
	if err != nil {
		return false, err
	}
	if found && current == value {
		return false, nil
	}

	if _, err := c.ssm.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	}); err != nil {
		return false, classifyAWS("putting parameter", name, err)
	}
	return true, nil
}

func (c *AWSClient) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.GetSecretValue(ctx, key)
	}

	name := c.parameterName(key)
	out, err := c.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, classifyAWS("reading parameter", name, err)
	}
	return aws.ToString(out.Parameter.Value), true, nil
}

func (c *AWSClient) DeleteConfig(ctx context.Context, key string) error {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.DeleteSecret(ctx, key)
	}

	name := c.parameterName(key)
	if _, err := c.ssm.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(name)}); err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return classifyAWS("deleting parameter", name, err)
	}
	return nil
}

// parameterName prefixes SSM entries with the spec's parameter path.
func (c *AWSClient) parameterName(key string) string {
	if c.opts.ParameterPath == "" {
		return key
	}
	return path.Join(c.opts.ParameterPath, key)
}

func (c *AWSClient) tags() []smtypes.Tag {
	return []smtypes.Tag{
		{Key: aws.String("environment"), Value: aws.String(c.opts.Environment)},
		{Key: aws.String("managed-by"), Value: aws.String("secret-manager-operator")},
	}
}

// classifyAWS folds smithy API errors into the shared error taxonomy.
func classifyAWS(op, name string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation":
			return &PermissionError{Op: op, Name: name, Err: err}
		case "ThrottlingException", "Throttling", "TooManyRequestsException", "RequestLimitExceeded":
			return &RateLimitError{Op: op, Name: name, Err: err}
		case "ResourceNotFoundException", "ParameterNotFound":
			return &NotFoundError{Op: op, Name: name, Err: err}
		}
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}
