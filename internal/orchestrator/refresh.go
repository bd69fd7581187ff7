package orchestrator

import (
	"context"
	"fetchguard/internal/ports"
	"fetchguard/internal/session"
	"fetchguard/internal/types"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// TokenResponse is the body a refresh endpoint answers with. ExpiresIn is in seconds.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// EndpointRefresher returns a TokenRefresher that POSTs to endpoint presenting the guard's current
// token. The call goes straight to the transport, outside the session and rate checks.
func EndpointRefresher(tr ports.Transport, g *session.Guard, endpoint string) TokenRefresher {
	return func(ctx context.Context) (string, time.Duration, error) {
		tok, ok := g.Token()
		if !ok {
			return "", 0, types.ErrNotLoggedIn
		}
		body, err := tr.Perform(ports.WithToken(ctx, tok), types.MethodPost, endpoint, nil)
		if err != nil {
			return "", 0, fmt.Errorf("refresh token: %w", err)
		}
		var resp TokenResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", 0, types.Err(types.ErrEncode, err, "%s: refresh response", endpoint)
		}
		if resp.Token == "" || resp.ExpiresIn <= 0 {
			return "", 0, types.Err(types.ErrEncode, nil, "%s: refresh response without token or expiry", endpoint)
		}
		return resp.Token, time.Duration(resp.ExpiresIn) * time.Second, nil
	}
}
