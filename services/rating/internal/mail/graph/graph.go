// Package graph sends mail through the Outlook REST sendmail endpoint.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/httpclient"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

const serviceName = "mail-graph"

// DefaultBaseURL is the Outlook REST API root.
const DefaultBaseURL = "https://outlook.office.com/api/v2.0"

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%s: no access token configured", serviceName)
	}
	return string(s), nil
}

type emailAddress struct {
	Name    string `json:"Name"`
	Address string `json:"Address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"EmailAddress"`
}

type itemBody struct {
	ContentType string `json:"ContentType"`
	Content     string `json:"Content"`
}

type message struct {
	Subject      string      `json:"Subject"`
	Body         itemBody    `json:"Body"`
	ToRecipients []recipient `json:"ToRecipients"`
	From         recipient   `json:"From"`
	Sender       recipient   `json:"Sender"`
	ReplyTo      []recipient `json:"ReplyTo"`
}

type sendMailRequest struct {
	Message         message `json:"Message"`
	SaveToSentItems bool    `json:"SaveToSentItems"`
}

// Transport posts messages to {base}/me/sendmail.
type Transport struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
}

// NewTransport creates a Graph transport. client should be built from
// httpclient.SingleAttempt so each send is one request.
func NewTransport(client *httpclient.CircuitBreakerClient, baseURL string, tokens TokenSource, logger *slog.Logger) *Transport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Transport{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		logger:  logger,
	}
}

// NewClient builds the breaker-wrapped single-attempt client the transport
// expects.
func NewClient(logger *slog.Logger) *httpclient.CircuitBreakerClient {
	return httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.SingleAttempt()),
		httpclient.DefaultCircuitBreakerConfig(serviceName),
		logger,
	)
}

// Name returns the name of this transport.
func (t *Transport) Name() string {
	return "graph"
}

// Send posts msg once. Sent copies are not saved to the sender's mailbox.
func (t *Transport) Send(ctx context.Context, msg *domain.NotificationMessage) error {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, t.baseURL+"/me/sendmail", sendMailRequest{
		Message:         toMessage(msg),
		SaveToSentItems: false,
	})
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return errors.Join(apperrors.ErrDeliveryFailed, fmt.Errorf("send mail: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Join(apperrors.ErrDeliveryFailed, httpclient.ParseResponseError(resp, serviceName))
	}
	_ = resp.Body.Close()

	t.logger.DebugContext(ctx, "graph sendmail accepted",
		slog.Int("status", resp.StatusCode),
		slog.String("subject", msg.Subject),
	)
	return nil
}

func toMessage(msg *domain.NotificationMessage) message {
	return message{
		Subject:      msg.Subject,
		Body:         itemBody{ContentType: "Text", Content: msg.Body},
		ToRecipients: toRecipients(msg.ToRecipients),
		From:         toRecipient(msg.From),
		Sender:       toRecipient(msg.Sender),
		ReplyTo:      toRecipients(msg.ReplyTo),
	}
}

func toRecipient(r domain.Recipient) recipient {
	return recipient{EmailAddress: emailAddress{Name: r.Name, Address: r.Address}}
}

func toRecipients(rs []domain.Recipient) []recipient {
	out := make([]recipient, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRecipient(r))
	}
	return out
}
