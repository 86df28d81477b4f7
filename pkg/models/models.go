// Package models holds the documents exchanged with a PocketBase server.
//
// Records are kept as generic structured documents: collections are user
// defined, so the SDK never assumes a schema beyond the system fields.
package models

import (
	"encoding/json"
	"fmt"
)

// Record is a generic document as returned by the records API.
type Record map[string]any

// ID returns the record id or "".
func (r Record) ID() string { return r.GetString("id") }

// CollectionName returns the name of the owning collection or "".
func (r Record) CollectionName() string { return r.GetString("collectionName") }

// CollectionID returns the id of the owning collection or "".
func (r Record) CollectionID() string { return r.GetString("collectionId") }

// GetString returns r[key] when it is a string, otherwise "".
func (r Record) GetString(key string) string {
	if r == nil {
		return ""
	}
	s, _ := r[key].(string)
	return s
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Decode converts r into a typed struct using its JSON representation.
func (r Record) Decode(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ListResult is one page of a list request.
type ListResult[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

// AuthResult is returned by every successful auth exchange.
type AuthResult struct {
	Token  string         `json:"token"`
	Record Record         `json:"record"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// AuthProvider describes one OAuth2 provider of an auth collection.
type AuthProvider struct {
	Name                string `json:"name"`
	DisplayName         string `json:"displayName"`
	State               string `json:"state"`
	AuthURL             string `json:"authURL"`
	CodeVerifier        string `json:"codeVerifier"`
	CodeChallenge       string `json:"codeChallenge"`
	CodeChallengeMethod string `json:"codeChallengeMethod"`
}

// AuthMethods lists the auth methods enabled on a collection.
type AuthMethods struct {
	Password struct {
		Enabled        bool     `json:"enabled"`
		IdentityFields []string `json:"identityFields"`
	} `json:"password"`
	OAuth2 struct {
		Enabled   bool           `json:"enabled"`
		Providers []AuthProvider `json:"providers"`
	} `json:"oauth2"`
	OTP struct {
		Enabled  bool `json:"enabled"`
		Duration int  `json:"duration"`
	} `json:"otp"`
	MFA struct {
		Enabled  bool `json:"enabled"`
		Duration int  `json:"duration"`
	} `json:"mfa"`
}

// OAuth2Payload is the body of an auth-with-oauth2 exchange.
type OAuth2Payload struct {
	Provider     string         `json:"provider"`
	Code         string         `json:"code"`
	CodeVerifier string         `json:"codeVerifier"`
	RedirectURL  string         `json:"redirectURL"`
	CreateData   map[string]any `json:"createData,omitempty"`
}

// OTPResponse is returned when a one-time password is requested.
type OTPResponse struct {
	OTPID string `json:"otpId"`
}

// ExternalAuth links an auth record to an OAuth2 provider account.
type ExternalAuth struct {
	ID           string `json:"id"`
	RecordRef    string `json:"recordRef"`
	CollectionID string `json:"collectionRef"`
	Provider     string `json:"provider"`
	ProviderID   string `json:"providerId"`
	Created      string `json:"created"`
	Updated      string `json:"updated"`
}

// HealthCheck is the body of the health endpoint.
type HealthCheck struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// BackupFileInfo describes a backup archive stored by the server.
type BackupFileInfo struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// LogEntry is one entry of the server's request and app log.
type LogEntry struct {
	ID      string         `json:"id"`
	Created string         `json:"created"`
	Updated string         `json:"updated"`
	Level   int            `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// HourlyStats is the number of log entries within one hour.
type HourlyStats struct {
	Total int    `json:"total"`
	Date  string `json:"date"`
}

// BatchResult is the outcome of one request of a batch, in request order.
type BatchResult struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}
