// Package models holds the typed records shared across fz's packages —
// the CORE's data model (spec.md §3) expressed as small structs with
// optional fields, rather than the source's weakly-typed maps, per the
// Design Notes' "model request payloads as small typed records" guidance.
package models

// Credentials is the persisted credentials record: one JSON object at
// <config_home>/fluidzero/credentials.json.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	APIURL       string `json:"api_url"`
	ClientID     string `json:"client_id,omitempty"`
}
