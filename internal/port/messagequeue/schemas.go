package messagequeue

// CredentialsInvalidatePayload is the schema for credentials.invalidate
// messages. It names the cache entry, never the credentials themselves.
type CredentialsInvalidatePayload struct {
	TenantID   string `json:"tenant_id"`
	IdentityID string `json:"identity_id"`
	CacheType  string `json:"cache_type"`
	Origin     string `json:"origin,omitempty"` // node id of the publisher
}
