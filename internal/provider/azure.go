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
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azappconfig"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/provider/pactmode"
)

// recoverReadableTimeout bounds the wait for a recovered secret to become
// readable again; Key Vault recovery is eventually consistent.
const recoverReadableTimeout = 15 * time.Second

// AzureClient drives Key Vault for secrets and App Configuration for
// properties. Disable maps to Key Vault soft-delete and enable to recovery,
// so a disabled secret carries a scheduled purge date until it reappears.
type AzureClient struct {
	vault  *azsecrets.Client
	appcfg *azappconfig.Client
	opts   Options
}

// NewAzure builds the client set for one resource. A non-empty endpoint
// replaces the vault URI derived from the vault name and relaxes the
// challenge resource check so a mock can answer the auth handshake.
func NewAzure(ctx context.Context, cfg *v1alpha1.AzureProvider, opts Options, endpoint string) (*AzureClient, error) {
	cred, err := azureCredential(opts, endpoint != "")
	if err != nil {
		return nil, fmt.Errorf("building azure credential: %w", err)
	}

	vaultURL := fmt.Sprintf("https://%s.vault.azure.net", cfg.VaultName)
	vaultOpts := &azsecrets.ClientOptions{}
	var appcfgOpts *azappconfig.ClientOptions
	if endpoint != "" {
		vaultURL = endpoint
		vaultOpts.DisableChallengeResourceVerification = true
		// Contract mocks answer deterministically; retries only slow the
		// verification down.
		vaultOpts.Retry = policy.RetryOptions{MaxRetries: -1}
		vaultOpts.InsecureAllowCredentialWithHTTP = true
		appcfgOpts = &azappconfig.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry:                           policy.RetryOptions{MaxRetries: -1},
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}
	vault, err := azsecrets.NewClient(vaultURL, cred, vaultOpts)
	if err != nil {
		return nil, fmt.Errorf("creating key vault client: %w", err)
	}

	c := &AzureClient{vault: vault, opts: opts}

	appcfgEndpoint := opts.AppConfigEndpoint
	if override, ok := pactmode.EndpointFor(pactmode.AzureAppConfig); ok {
		appcfgEndpoint = override
	}
	if appcfgEndpoint != "" {
		appcfg, err := azappconfig.NewClient(appcfgEndpoint, cred, appcfgOpts)
		if err != nil {
			return nil, fmt.Errorf("creating app configuration client: %w", err)
		}
		c.appcfg = appcfg
	}
	return c, nil
}

// azureCredential prefers the spec's service principal, then the ambient
// chain. Mocked endpoints get a static token the mock never validates.
func azureCredential(opts Options, mocked bool) (azcore.TokenCredential, error) {
	if mocked {
		return staticTokenCredential{}, nil
	}
	tenant := string(opts.Credentials["tenant_id"])
	client := string(opts.Credentials["client_id"])
	secret := string(opts.Credentials["client_secret"])
	if tenant != "" && client != "" && secret != "" {
		return azidentity.NewClientSecretCredential(tenant, client, secret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

type staticTokenCredential struct{}

func (staticTokenCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "pact-mode", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func (c *AzureClient) Name() string { return "azure" }

func (c *AzureClient) Close() error { return nil }

func (c *AzureClient) UpsertSecret(ctx context.Context, name, value string) (bool, error) {
	if err := checkSize(name, value, MaxSecretBytesAzure); err != nil {
		return false, err
	}

	current, found, err := c.GetSecretValue(ctx, name)
	if err != nil {
		return false, err
	}
	if found && current == value {
		return false, nil
	}

	_, err = c.vault.SetSecret(ctx, name, azsecrets.SetSecretParameters{
		Value: to.Ptr(value),
		Tags: map[string]*string{
			"environment": to.Ptr(c.opts.Environment),
			"managed-by":  to.Ptr("secret-manager-operator"),
		},
	}, nil)
	if err != nil {
		return false, classifyAzure("setting", name, err)
	}
	return true, nil
}

func (c *AzureClient) GetSecretValue(ctx context.Context, name string) (string, bool, error) {
	resp, err := c.vault.GetSecret(ctx, name, "", nil)
	if err != nil {
		// Soft-deleted secrets 404 on the live endpoint, same as missing.
		if azureStatus(err) == 404 {
			return "", false, nil
		}
		return "", false, classifyAzure("reading", name, err)
	}
	if resp.Value == nil {
		return "", true, nil
	}
	return *resp.Value, true, nil
}

func (c *AzureClient) DisableSecret(ctx context.Context, name string) (bool, error) {
	_, err := c.vault.DeleteSecret(ctx, name, nil)
	if err != nil {
		if azureStatus(err) == 404 {
			return false, nil
		}
		return false, classifyAzure("disabling", name, err)
	}
	return true, nil
}

func (c *AzureClient) EnableSecret(ctx context.Context, name string) (bool, error) {
	_, err := c.vault.RecoverDeletedSecret(ctx, name, nil)
	if err != nil {
		if azureStatus(err) == 404 {
			return false, nil
		}
		return false, classifyAzure("recovering", name, err)
	}

	// Block until the recovered value answers reads again so the caller's
	// follow-up compare sees it instead of writing a duplicate version.
	_ = wait.PollUntilContextTimeout(ctx, time.Second, recoverReadableTimeout, true,
		func(ctx context.Context) (bool, error) {
			_, err := c.vault.GetSecret(ctx, name, "", nil)
			if err == nil {
				return true, nil
			}
			if azureStatus(err) == 404 {
				return false, nil
			}
			return false, err
		})
	return true, nil
}

func (c *AzureClient) DeleteSecret(ctx context.Context, name string) error {
	if _, err := c.vault.DeleteSecret(ctx, name, nil); err != nil && azureStatus(err) != 404 {
		return classifyAzure("deleting", name, err)
	}
	if _, err := c.vault.PurgeDeletedSecret(ctx, name, nil); err != nil && azureStatus(err) != 404 {
		return classifyAzure("purging", name, err)
	}
	return nil
}

func (c *AzureClient) UpsertConfig(ctx context.Context, key, value string) (bool, error) {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.UpsertSecret(ctx, key, value)
	}
	appcfg, err := c.configClient()
	if err != nil {
		return false, err
	}
	if err := checkSize(key, value, MaxSecretBytesAzure); err != nil {
		return false, err
	}

	current, found, err := c.GetConfigValue(ctx, key)
	if err != nil {
		return false, err
	}
	if found && current == value {
		return false, nil
	}

	if _, err := appcfg.SetSetting(ctx, key, to.Ptr(value), nil); err != nil {
		return false, classifyAzure("setting configuration", key, err)
	}
	return true, nil
}

func (c *AzureClient) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.GetSecretValue(ctx, key)
	}
	appcfg, err := c.configClient()
	if err != nil {
		return "", false, err
	}

	resp, err := appcfg.GetSetting(ctx, key, nil)
	if err != nil {
		if azureStatus(err) == 404 {
			return "", false, nil
		}
		return "", false, classifyAzure("reading configuration", key, err)
	}
	if resp.Value == nil {
		return "", true, nil
	}
	return *resp.Value, true, nil
}

func (c *AzureClient) DeleteConfig(ctx context.Context, key string) error {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.DeleteSecret(ctx, key)
	}
	appcfg, err := c.configClient()
	if err != nil {
		return err
	}

	if _, err := appcfg.DeleteSetting(ctx, key, nil); err != nil && azureStatus(err) != 404 {
		return classifyAzure("deleting configuration", key, err)
	}
	return nil
}

func (c *AzureClient) configClient() (*azappconfig.Client, error) {
	if c.appcfg == nil {
		return nil, errors.New("app configuration endpoint is not configured")
	}
	return c.appcfg, nil
}

func azureStatus(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// classifyAzure folds Key Vault and App Configuration response errors into
// the shared error taxonomy.
func classifyAzure(op, name string, err error) error {
	switch azureStatus(err) {
	case 401, 403:
		return &PermissionError{Op: op, Name: name, Err: err}
	case 429:
		return &RateLimitError{Op: op, Name: name, Err: err}
	case 404:
		return &NotFoundError{Op: op, Name: name, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}
