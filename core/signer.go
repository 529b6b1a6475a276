package core

import (
	"context"
	"fmt"
	"strings"
)

const AuthorizationHeader = "Authorization"

// BearerTokenSigner attaches the access token as an Authorization bearer
// header.
type BearerTokenSigner struct{}

func (BearerTokenSigner) Sign(_ context.Context, req *TransportRequest, cred Credential) error {
	if req == nil {
		return fmt.Errorf("core: transport request is required")
	}
	token := strings.TrimSpace(cred.AccessToken)
	if token == "" {
		return fmt.Errorf("core: access token is required for bearer signing")
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	for key := range req.Headers {
		if strings.EqualFold(key, AuthorizationHeader) {
			delete(req.Headers, key)
		}
	}
	req.Headers[AuthorizationHeader] = "Bearer " + token
	return nil
}
