package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SecretManagerStore reads the latest version of secrets from Google Secret
// Manager in one project.
type SecretManagerStore struct {
	client  *secretmanager.Client
	project string
}

// NewSecretManagerStore connects to Secret Manager for project.
func NewSecretManagerStore(ctx context.Context, project string, opts ...option.ClientOption) (*SecretManagerStore, error) {
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("secret manager project is required")
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManagerStore{client: client, project: project}, nil
}

// Get accesses projects/<project>/secrets/<name>/versions/latest.
func (s *SecretManagerStore) Get(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: SecretVersionName(s.project, name),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

// Close releases the client connection.
func (s *SecretManagerStore) Close() error {
	return s.client.Close()
}

// SecretVersionName returns the resource name of a secret's latest version.
func SecretVersionName(project, name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, name)
}
