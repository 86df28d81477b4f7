package pocketbase

import (
	"context"
	"net/http"
	"time"

	"github.com/thijsmie/pocketbase/pkg/auth"
	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// RecordAuthService implements the auth endpoints of an auth collection.
// Every successful exchange is stored in the client's auth store.
type RecordAuthService struct {
	service
	kind auth.Kind
}

func newRecordAuthService(c *Client, collection string, kind auth.Kind) *RecordAuthService {
	return &RecordAuthService{
		service: service{client: c, basePath: collectionPath(collection)},
		kind:    kind,
	}
}

func (s *RecordAuthService) exchange(ctx context.Context, path string, body map[string]any, opts *RequestOptions) (*models.AuthResult, error) {
	var result models.AuthResult
	err := s.send(ctx, path, transport.SendOptions{Method: http.MethodPost, Body: body}, opts, &result)
	if err != nil {
		return nil, err
	}
	s.client.store.SetIdentity(s.kind, result.Record, result.Token)
	return &result, nil
}

// Methods lists the auth methods the collection allows.
func (s *RecordAuthService) Methods(ctx context.Context, opts *RequestOptions) (*models.AuthMethods, error) {
	var methods models.AuthMethods
	if err := s.send(ctx, s.path("auth-methods"), transport.SendOptions{Method: http.MethodGet}, opts, &methods); err != nil {
		return nil, err
	}
	return &methods, nil
}

// WithPassword authenticates with an identity (email or username) and password.
func (s *RecordAuthService) WithPassword(ctx context.Context, identity, password string, opts *RequestOptions) (*models.AuthResult, error) {
	return s.exchange(ctx, s.path("auth-with-password"), map[string]any{
		"identity": identity,
		"password": password,
	}, opts)
}

// WithOAuth2 completes an OAuth2 code exchange, see NewOAuth2Payload.
func (s *RecordAuthService) WithOAuth2(ctx context.Context, payload models.OAuth2Payload, opts *RequestOptions) (*models.AuthResult, error) {
	body := map[string]any{
		"provider":     payload.Provider,
		"code":         payload.Code,
		"codeVerifier": payload.CodeVerifier,
		"redirectURL":  payload.RedirectURL,
	}
	if len(payload.CreateData) > 0 {
		body["createData"] = payload.CreateData
	}
	return s.exchange(ctx, s.path("auth-with-oauth2"), body, opts)
}

// Refresh exchanges the current token for a new one. It never triggers the
// automatic refresh of the auth store itself.
func (s *RecordAuthService) Refresh(ctx context.Context, opts *RequestOptions) (*models.AuthResult, error) {
	return s.exchange(auth.SkipRefresh(ctx), s.path("auth-refresh"), nil, opts)
}

// RequestOTP sends a one-time password to email.
func (s *RecordAuthService) RequestOTP(ctx context.Context, email string, opts *RequestOptions) (*models.OTPResponse, error) {
	var out models.OTPResponse
	err := s.send(ctx, s.path("request-otp"), transport.SendOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"email": email},
	}, opts, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WithOTP authenticates with a one-time password obtained through RequestOTP.
func (s *RecordAuthService) WithOTP(ctx context.Context, otpID, password string, opts *RequestOptions) (*models.AuthResult, error) {
	return s.exchange(ctx, s.path("auth-with-otp"), map[string]any{
		"otpId":    otpID,
		"password": password,
	}, opts)
}

// Impersonate authenticates as another record. Only superusers may call it.
// A zero duration lets the server pick the token lifetime.
func (s *RecordAuthService) Impersonate(ctx context.Context, recordID string, duration time.Duration, opts *RequestOptions) (*models.AuthResult, error) {
	if recordID == "" {
		return nil, ErrEmptyRecordID
	}
	var body map[string]any
	if duration > 0 {
		body = map[string]any{"duration": int(duration.Seconds())}
	}

	var result models.AuthResult
	err := s.send(ctx, s.path("impersonate", recordID), transport.SendOptions{Method: http.MethodPost, Body: body}, opts, &result)
	if err != nil {
		return nil, err
	}
	s.client.store.SetIdentity(auth.KindRecord, result.Record, result.Token)
	return &result, nil
}

// ListExternalAuths lists the OAuth2 accounts linked to a record.
func (s *RecordAuthService) ListExternalAuths(ctx context.Context, recordID string, opts *RequestOptions) ([]models.ExternalAuth, error) {
	if recordID == "" {
		return nil, ErrEmptyRecordID
	}
	var out []models.ExternalAuth
	if err := s.send(ctx, s.path("records", recordID, "external-auths"), transport.SendOptions{Method: http.MethodGet}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnlinkExternalAuth removes the link between a record and an OAuth2 provider.
func (s *RecordAuthService) UnlinkExternalAuth(ctx context.Context, recordID, provider string, opts *RequestOptions) error {
	if recordID == "" {
		return ErrEmptyRecordID
	}
	return s.send(ctx, s.path("records", recordID, "external-auths", provider), transport.SendOptions{Method: http.MethodDelete}, opts, nil)
}
