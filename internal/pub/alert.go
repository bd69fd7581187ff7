package pub

import (
	"context"
	"fetchguard/internal/ports"
	"fetchguard/internal/types"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const AuthRejectedEvent = "auth_rejected"

// AuthAlert is the message published when the backend rejects the session's credentials.
type AuthAlert struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	Status int    `json:"status"`
	Source string `json:"source,omitempty"`
	At     int64  `json:"at"`
}

// AuthAlerter publishes an AuthAlert to a topic each time credentials are rejected.
type AuthAlerter struct {
	pub     ports.Publisher
	arn     string
	source  string
	timeout time.Duration
	now     func() time.Time
}

func NewAuthAlerter(p ports.Publisher, arn, source string) *AuthAlerter {
	return &AuthAlerter{pub: p, arn: arn, source: source, timeout: 5 * time.Second, now: time.Now}
}

func (a *AuthAlerter) SetNowFn(f func() time.Time) {
	a.now = f
}

func (a *AuthAlerter) Publish(ctx context.Context, status int) error {
	b, err := json.Marshal(AuthAlert{
		ID:     uuid.NewString(),
		Event:  AuthRejectedEvent,
		Status: status,
		Source: a.source,
		At:     a.now().Unix(),
	})
	if err != nil {
		return types.Err(types.ErrEncode, err, "auth alert")
	}
	return a.pub.PublishRaw(ctx, a.arn, b)
}

// OnAuthError adapts Publish to the orchestrator's auth callback. Publish failures are logged.
func (a *AuthAlerter) OnAuthError(status int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.Publish(ctx, status); err != nil {
		log.WithError(err).WithField("arn", a.arn).Error("failed to publish auth alert")
	}
}
