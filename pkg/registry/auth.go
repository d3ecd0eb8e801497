package registry

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecr/ecriface"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/pkg/errors"
)

// Credentials are the registry login obtained from ECR
type Credentials struct {
	Username string
	Password string
	Endpoint string
}

// Authenticator returns a go-containerregistry authenticator for the credentials
func (c Credentials) Authenticator() authn.Authenticator {
	return authn.FromConfig(authn.AuthConfig{
		Username: c.Username,
		Password: c.Password,
	})
}

// DecodeAuthToken decodes an ECR authorization token. The token is the
// base64 encoding of "user:password"; the password is everything after the
// first colon and may itself contain colons.
func DecodeAuthToken(token string) (username, password string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", errors.Wrap(err, "decoding authorization token")
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", errors.Errorf("decoded credential has wrong number of fields (expected 2, got %d)", len(parts))
	}
	if parts[1] == "" {
		return "", "", errors.New("decoded credential has an empty password")
	}
	return parts[0], parts[1], nil
}

// FetchCredentials exchanges the caller's AWS identity for a registry login
func FetchCredentials(ctx context.Context, client ecriface.ECRAPI) (Credentials, error) {
	out, err := client.GetAuthorizationTokenWithContext(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Credentials{}, errors.Wrap(err, "requesting ECR authorization token")
	}
	if len(out.AuthorizationData) == 0 {
		return Credentials{}, errors.New("ECR returned no authorization data")
	}

	data := out.AuthorizationData[0]
	username, password, err := DecodeAuthToken(aws.StringValue(data.AuthorizationToken))
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Username: username,
		Password: password,
		Endpoint: strings.TrimPrefix(aws.StringValue(data.ProxyEndpoint), "https://"),
	}, nil
}
