// Package push delivers notifications to the barber's registered devices.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrUnregistered means the device token is no longer valid and should be dropped.
var ErrUnregistered = errors.New("push token unregistered")

type Message struct {
	Title string
	Body  string
	Data  map[string]string
	// Link is opened when a web notification is clicked.
	Link string
}

type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
	ProviderID() string
}

// FCMSender sends through the Firebase Cloud Messaging HTTP v1 API.
type FCMSender struct {
	svc     *fcm.Service
	project string
}

type FCMConfig struct {
	ProjectID string
	// CredentialsFile points at a service account JSON key. Empty uses
	// application default credentials.
	CredentialsFile string
}

func NewFCMSender(ctx context.Context, cfg FCMConfig, opts ...option.ClientOption) (*FCMSender, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errors.New("fcm project id is required")
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("fcm client: %w", err)
	}
	return &FCMSender{svc: svc, project: project}, nil
}

func (s *FCMSender) ProviderID() string {
	return "fcm"
}

func (s *FCMSender) Send(ctx context.Context, token string, msg Message) error {
	m := &fcm.Message{
		Token: token,
		Notification: &fcm.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
	if msg.Link != "" {
		m.Webpush = &fcm.WebpushConfig{FcmOptions: &fcm.WebpushFcmOptions{Link: msg.Link}}
	}
	_, err := s.svc.Projects.Messages.Send("projects/"+s.project, &fcm.SendMessageRequest{Message: m}).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrUnregistered, apiErr.Message)
	}
	return err
}

// NoopSender logs instead of sending; for local development.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) ProviderID() string {
	return "push-noop"
}

func (s *NoopSender) Send(_ context.Context, token string, msg Message) error {
	s.logger.Info("push suppressed", "token_suffix", tokenSuffix(token), "title", msg.Title, "body", msg.Body)
	return nil
}

func tokenSuffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[len(token)-6:]
}
