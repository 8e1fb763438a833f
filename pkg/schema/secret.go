package schema

import "time"

// SecretType distinguishes plain API keys from OAuth token pairs.
type SecretType string

const (
	SecretTypeAPIKey SecretType = "api_key"
	SecretTypeOAuth  SecretType = "oauth"
)

// SecretRecord is a stored credential. Value and RefreshToken exist only in
// process memory; the persisted representation holds ciphertext plus the
// remaining fields as metadata.
type SecretRecord struct {
	ID           string            `json:"id"`
	ServiceID    string            `json:"service_id"`
	Name         string            `json:"name"`
	Type         SecretType        `json:"type"`
	Value        string            `json:"value,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	LastVerified *time.Time        `json:"last_verified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Meta returns the non-secret projection of the record.
func (r *SecretRecord) Meta() SecretMetadata {
	return SecretMetadata{
		ID:           r.ID,
		ServiceID:    r.ServiceID,
		Name:         r.Name,
		Type:         r.Type,
		ExpiresAt:    r.ExpiresAt,
		LastVerified: r.LastVerified,
		Metadata:     r.Metadata,
	}
}

// SecretMetadata is the listable, never-encrypted part of a record.
type SecretMetadata struct {
	ID           string            `json:"id"`
	ServiceID    string            `json:"service_id"`
	Name         string            `json:"name"`
	Type         SecretType        `json:"type"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	LastVerified *time.Time        `json:"last_verified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ExportBundle is the self-contained portable artifact produced by a vault
// export: a fresh PBKDF2 salt plus the AEAD output over the serialized
// credential set. It is independent of the local master key.
type ExportBundle struct {
	Version       int    `json:"version"`
	Salt          []byte `json:"salt"`
	EncryptedData []byte `json:"encrypted_data"`
}

// ExportVersion is the current ExportBundle format version.
const ExportVersion = 1
