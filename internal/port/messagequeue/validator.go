package messagequeue

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// invalidatableCaches lists the cache_type values a node knows how to evict.
var invalidatableCaches = map[string]bool{
	"provider":       true,
	"provider_model": true,
}

// Validate rejects a message whose payload does not match the schema for its
// subject. Subjects without a schema only need to be JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	if subject != SubjectCredentialsInvalidate {
		return nil
	}

	var p CredentialsInvalidatePayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if err := p.validate(); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}

func (p CredentialsInvalidatePayload) validate() error {
	if p.TenantID == "" || p.IdentityID == "" || p.CacheType == "" {
		return fmt.Errorf("tenant_id, identity_id and cache_type are required")
	}
	if _, err := uuid.Parse(p.TenantID); err != nil {
		return fmt.Errorf("tenant_id: %w", err)
	}
	if _, err := uuid.Parse(p.IdentityID); err != nil {
		return fmt.Errorf("identity_id: %w", err)
	}
	if !invalidatableCaches[p.CacheType] {
		return fmt.Errorf("unknown cache_type %q", p.CacheType)
	}
	return nil
}
