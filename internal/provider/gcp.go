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
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	parametermanager "cloud.google.com/go/parametermanager/apiv1"
	"cloud.google.com/go/parametermanager/apiv1/parametermanagerpb"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

// GCPClient drives Secret Manager for secrets and Parameter Manager for
// properties. Both clients use the REST transport so a single mock HTTP
// endpoint can serve contract tests.
type GCPClient struct {
	secrets   *secretmanager.Client
	params    *parametermanager.Client
	projectID string
	location  string
	opts      Options
}

// NewGCP builds the client set for one resource. endpoint routes both
// services at a mock when non-empty; otherwise the spec's optional service
// account key or the ambient chain authenticates.
func NewGCP(ctx context.Context, cfg *v1alpha1.GCPProvider, opts Options, endpoint string) (*GCPClient, error) {
	var clientOpts []option.ClientOption
	if endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else if key, ok := opts.Credentials["credentials.json"]; ok {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(key))
	}

	secrets, err := secretmanager.NewRESTClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	params, err := parametermanager.NewRESTClient(ctx, clientOpts...)
	if err != nil {
		_ = secrets.Close()
		return nil, fmt.Errorf("creating parameter manager client: %w", err)
	}

	return &GCPClient{
		secrets:   secrets,
		params:    params,
		projectID: cfg.ProjectID,
		location:  cfg.Location,
		opts:      opts,
	}, nil
}

func (c *GCPClient) Name() string { return "gcp" }

// Close releases both underlying transports.
func (c *GCPClient) Close() error {
	err := c.secrets.Close()
	if perr := c.params.Close(); perr != nil && err == nil {
		err = perr
	}
	return err
}

func (c *GCPClient) UpsertSecret(ctx context.Context, name, value string) (bool, error) {
	if err := checkSize(name, value, MaxSecretBytesGCP); err != nil {
		return false, err
	}

	current, found, err := c.GetSecretValue(ctx, name)
	if err != nil {
		return false, err
	}
	if found && current == value {
		return false, nil
	}

	if err := c.ensureSecret(ctx, name); err != nil {
		return false, err
	}
	_, err = c.secrets.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  c.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return false, classifyGCP("adding version to", name, err)
	}
	return true, nil
}

func (c *GCPClient) GetSecretValue(ctx context.Context, name string) (string, bool, error) {
	res, err := c.secrets.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: c.versionPath(name, "latest"),
	})
	switch {
	case err == nil:
		return string(res.GetPayload().GetData()), true, nil
	case isGCPNotFound(err):
		return "", false, nil
	case isGCPPrecondition(err):
		// The newest version is disabled or destroyed; fall back to the
		// newest enabled one.
		version, ok, err := c.newestVersionIn(ctx, name, secretmanagerpb.SecretVersion_ENABLED)
		if err != nil || !ok {
			return "", false, err
		}
		res, err := c.secrets.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: version})
		if err != nil {
			return "", false, classifyGCP("accessing", name, err)
		}
		return string(res.GetPayload().GetData()), true, nil
	default:
		return "", false, classifyGCP("accessing", name, err)
	}
}

func (c *GCPClient) DisableSecret(ctx context.Context, name string) (bool, error) {
	changed := false
	it := c.secrets.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{Parent: c.secretPath(name)})
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if isGCPNotFound(err) {
				return changed, nil
			}
			return changed, classifyGCP("listing versions of", name, err)
		}
		if v.GetState() != secretmanagerpb.SecretVersion_ENABLED {
			continue
		}
		if _, err := c.secrets.DisableSecretVersion(ctx, &secretmanagerpb.DisableSecretVersionRequest{Name: v.GetName()}); err != nil {
			return changed, classifyGCP("disabling", name, err)
		}
		changed = true
	}
	return changed, nil
}

func (c *GCPClient) EnableSecret(ctx context.Context, name string) (bool, error) {
	it := c.secrets.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{Parent: c.secretPath(name)})

	var newestDisabled string
	newestNumber := int64(-1)
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if isGCPNotFound(err) {
				return false, nil
			}
			return false, classifyGCP("listing versions of", name, err)
		}
		// An enabled version means the secret is already readable.
		if v.GetState() == secretmanagerpb.SecretVersion_ENABLED {
			return false, nil
		}
		if v.GetState() != secretmanagerpb.SecretVersion_DISABLED {
			continue
		}
		if n := versionNumber(v.GetName()); n > newestNumber {
			newestNumber, newestDisabled = n, v.GetName()
		}
	}
	if newestDisabled == "" {
		return false, nil
	}

	if _, err := c.secrets.EnableSecretVersion(ctx, &secretmanagerpb.EnableSecretVersionRequest{Name: newestDisabled}); err != nil {
		return false, classifyGCP("enabling", name, err)
	}
	return true, nil
}

func (c *GCPClient) DeleteSecret(ctx context.Context, name string) error {
	err := c.secrets.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: c.secretPath(name)})
	if err != nil && !isGCPNotFound(err) {
		return classifyGCP("deleting", name, err)
	}
	return nil
}

func (c *GCPClient) UpsertConfig(ctx context.Context, key, value string) (bool, error) {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.UpsertSecret(ctx, key, value)
	}
	if err := checkSize(key, value, MaxSecretBytesGCP); err != nil {
		return false, err
	}

	current, found, err := c.GetConfigValue(ctx, key)
	if err != nil {
		return false, err
	}
	if found && current == value {
		return false, nil
	}

	if err := c.ensureParameter(ctx, key); err != nil {
		return false, err
	}
	// Parameter Manager versions are caller-named; a nanosecond stamp keeps
	// them unique and sortable.
	_, err = c.params.CreateParameterVersion(ctx, &parametermanagerpb.CreateParameterVersionRequest{
		Parent:             c.parameterPath(key),
		ParameterVersionId: fmt.Sprintf("v%d", time.Now().UnixNano()),
		ParameterVersion: &parametermanagerpb.ParameterVersion{
			Payload: &parametermanagerpb.ParameterVersionPayload{Data: []byte(value)},
		},
	})
	if err != nil {
		return false, classifyGCP("adding version to parameter", key, err)
	}
	return true, nil
}

func (c *GCPClient) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.GetSecretValue(ctx, key)
	}

	versionName, ok, err := c.newestParameterVersion(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	v, err := c.params.GetParameterVersion(ctx, &parametermanagerpb.GetParameterVersionRequest{Name: versionName})
	if err != nil {
		if isGCPNotFound(err) {
			return "", false, nil
		}
		return "", false, classifyGCP("reading parameter", key, err)
	}
	return string(v.GetPayload().GetData()), true, nil
}

func (c *GCPClient) DeleteConfig(ctx context.Context, key string) error {
	if c.opts.storeOrDefault() == v1alpha1.ConfigStoreSecretManager {
		return c.DeleteSecret(ctx, key)
	}

	// Versions must go before the parameter itself.
	it := c.params.ListParameterVersions(ctx, &parametermanagerpb.ListParameterVersionsRequest{Parent: c.parameterPath(key)})
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if isGCPNotFound(err) {
				return nil
			}
			return classifyGCP("listing versions of parameter", key, err)
		}
		if err := c.params.DeleteParameterVersion(ctx, &parametermanagerpb.DeleteParameterVersionRequest{Name: v.GetName()}); err != nil && !isGCPNotFound(err) {
			return classifyGCP("deleting version of parameter", key, err)
		}
	}
	if err := c.params.DeleteParameter(ctx, &parametermanagerpb.DeleteParameterRequest{Name: c.parameterPath(key)}); err != nil && !isGCPNotFound(err) {
		return classifyGCP("deleting parameter", key, err)
	}
	return nil
}

func (c *GCPClient) ensureSecret(ctx context.Context, name string) error {
	_, err := c.secrets.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   c.projectPath(),
		SecretId: name,
		Secret: &secretmanagerpb.Secret{
			Labels: c.labels(),
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_UserManaged_{
					UserManaged: &secretmanagerpb.Replication_UserManaged{
						Replicas: []*secretmanagerpb.Replication_UserManaged_Replica{
							{Location: c.location},
						},
					},
				},
			},
		},
	})
	if err != nil && !isGCPAlreadyExists(err) {
		return classifyGCP("creating", name, err)
	}
	return nil
}

func (c *GCPClient) ensureParameter(ctx context.Context, key string) error {
	_, err := c.params.CreateParameter(ctx, &parametermanagerpb.CreateParameterRequest{
		Parent:      c.locationPath(),
		ParameterId: key,
		Parameter: &parametermanagerpb.Parameter{
			Format: parametermanagerpb.ParameterFormat_UNFORMATTED,
			Labels: c.labels(),
		},
	})
	if err != nil && !isGCPAlreadyExists(err) {
		return classifyGCP("creating parameter", key, err)
	}
	return nil
}

// newestVersionIn returns the highest-numbered secret version in the given
// state. Missing secrets report ok=false without error.
func (c *GCPClient) newestVersionIn(ctx context.Context, name string, state secretmanagerpb.SecretVersion_State) (string, bool, error) {
	it := c.secrets.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{Parent: c.secretPath(name)})

	var best string
	bestNumber := int64(-1)
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if isGCPNotFound(err) {
				return "", false, nil
			}
			return "", false, classifyGCP("listing versions of", name, err)
		}
		if v.GetState() != state {
			continue
		}
		if n := versionNumber(v.GetName()); n > bestNumber {
			bestNumber, best = n, v.GetName()
		}
	}
	return best, best != "", nil
}

// newestParameterVersion orders caller-named versions by create time.
func (c *GCPClient) newestParameterVersion(ctx context.Context, key string) (string, bool, error) {
	it := c.params.ListParameterVersions(ctx, &parametermanagerpb.ListParameterVersionsRequest{Parent: c.parameterPath(key)})

	var best string
	var bestTime time.Time
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if isGCPNotFound(err) {
				return "", false, nil
			}
			return "", false, classifyGCP("listing versions of parameter", key, err)
		}
		if v.GetDisabled() {
			continue
		}
		if created := v.GetCreateTime().AsTime(); best == "" || created.After(bestTime) {
			bestTime, best = created, v.GetName()
		}
	}
	return best, best != "", nil
}

func (c *GCPClient) labels() map[string]string {
	return map[string]string{
		"environment": strings.ToLower(SanitizeName(c.opts.Environment)),
		"managed-by":  "secret-manager-operator",
	}
}

func (c *GCPClient) projectPath() string { return "projects/" + c.projectID }

func (c *GCPClient) secretPath(name string) string {
	return c.projectPath() + "/secrets/" + name
}

func (c *GCPClient) versionPath(name, version string) string {
	return c.secretPath(name) + "/versions/" + version
}

func (c *GCPClient) locationPath() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.projectID, c.location)
}

func (c *GCPClient) parameterPath(key string) string {
	return c.locationPath() + "/parameters/" + key
}

func versionNumber(name string) int64 {
	n, err := strconv.ParseInt(path.Base(name), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// classifyGCP folds vendor responses into the shared error taxonomy. REST
// transports surface *googleapi.Error, gRPC ones *apierror.APIError.
func classifyGCP(op, name string, err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		switch ge.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &PermissionError{Op: op, Name: name, Err: err}
		case http.StatusTooManyRequests:
			return &RateLimitError{Op: op, Name: name, Err: err}
		case http.StatusNotFound:
			return &NotFoundError{Op: op, Name: name, Err: err}
		}
	}
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if st := ae.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Unauthenticated, codes.PermissionDenied:
				return &PermissionError{Op: op, Name: name, Err: err}
			case codes.ResourceExhausted:
				return &RateLimitError{Op: op, Name: name, Err: err}
			case codes.NotFound:
				return &NotFoundError{Op: op, Name: name, Err: err}
			}
		}
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}

func isGCPNotFound(err error) bool {
	return gcpCodeIs(err, http.StatusNotFound, codes.NotFound)
}

func isGCPAlreadyExists(err error) bool {
	return gcpCodeIs(err, http.StatusConflict, codes.AlreadyExists)
}

func isGCPPrecondition(err error) bool {
	return gcpCodeIs(err, http.StatusBadRequest, codes.FailedPrecondition)
}

func gcpCodeIs(err error, httpCode int, grpcCode codes.Code) bool {
	var ge *googleapi.Error
	if errors.As(err, &ge) && ge.Code == httpCode {
		return true
	}
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if st := ae.GRPCStatus(); st != nil && st.Code() == grpcCode {
			return true
		}
	}
	return false
}
