package pocketbase

import (
	"context"
	"errors"
	"net/http"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// Templates accepted by SettingsService.TestEmail
const (
	EmailTemplateVerification  = "verification"
	EmailTemplatePasswordReset = "password-reset"
	EmailTemplateEmailChange   = "email-change"
)

// ErrNoAppleSecret is returned when the server answers without a secret.
var ErrNoAppleSecret = errors.New("pocketbase: no apple client secret in response")

// AppleClientSecret holds the inputs of SettingsService.GenerateAppleClientSecret.
type AppleClientSecret struct {
	ClientID   string `json:"clientId"`
	TeamID     string `json:"teamId"`
	KeyID      string `json:"keyId"`
	PrivateKey string `json:"privateKey"`
	// Duration is the validity of the secret in seconds.
	Duration int `json:"duration"`
}

// SettingsService reads and updates the app settings. All endpoints require
// a superuser.
type SettingsService struct {
	service
}

func newSettingsService(c *Client) *SettingsService {
	return &SettingsService{service: service{client: c, basePath: "/api/settings"}}
}

func (s *SettingsService) GetAll(ctx context.Context, opts *RequestOptions) (models.Record, error) {
	var out models.Record
	if err := s.send(ctx, s.path(), transport.SendOptions{Method: http.MethodGet}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update patches the given settings and returns the full set.
func (s *SettingsService) Update(ctx context.Context, body map[string]any, opts *RequestOptions) (models.Record, error) {
	var out models.Record
	if err := s.send(ctx, s.path(), transport.SendOptions{Method: http.MethodPatch, Body: body}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TestS3 checks the connection to the S3 storage of filesystem ("storage" or
// "backups"). An empty filesystem leaves the choice to the server.
func (s *SettingsService) TestS3(ctx context.Context, filesystem string, opts *RequestOptions) error {
	body := map[string]any{}
	if filesystem != "" {
		body["filesystem"] = filesystem
	}
	return s.send(ctx, s.path("test", "s3"), transport.SendOptions{Method: http.MethodPost, Body: body}, opts, nil)
}

// TestEmail sends a test email rendered from template to toEmail.
func (s *SettingsService) TestEmail(ctx context.Context, toEmail, template string, opts *RequestOptions) error {
	return s.send(ctx, s.path("test", "email"), transport.SendOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"email": toEmail, "template": template},
	}, opts, nil)
}

func (s *SettingsService) GenerateAppleClientSecret(ctx context.Context, in AppleClientSecret, opts *RequestOptions) (string, error) {
	var out struct {
		Secret string `json:"secret"`
	}
	err := s.send(ctx, s.path("apple", "generate-client-secret"), transport.SendOptions{
		Method: http.MethodPost,
		Body: map[string]any{
			"clientId":   in.ClientID,
			"teamId":     in.TeamID,
			"keyId":      in.KeyID,
			"privateKey": in.PrivateKey,
			"duration":   in.Duration,
		},
	}, opts, &out)
	if err != nil {
		return "", err
	}
	if out.Secret == "" {
		return "", ErrNoAppleSecret
	}
	return out.Secret, nil
}
