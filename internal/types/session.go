package types

// SessionRecord is the persisted form of a session, written by a SessionStore when the caller chooses
// to keep a session across restarts. Times are unix seconds.
type SessionRecord struct {
	UserID         string `json:"user_id" dynamodbav:"user_id"`
	Username       string `json:"username" dynamodbav:"username"`
	Role           string `json:"role" dynamodbav:"role"`
	Token          string `json:"token" dynamodbav:"token"`
	TokenExpiry    int64  `json:"token_expiry" dynamodbav:"token_expiry"`
	LastActivity   int64  `json:"last_activity" dynamodbav:"last_activity"`
	TimeoutMinutes int    `json:"timeout_minutes" dynamodbav:"timeout_minutes"`
}
