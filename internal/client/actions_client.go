package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/services"
	"cloudvault/internal/transport/httpdto"

	"github.com/google/uuid"
)

const defaultTimeout = 15 * time.Second

// ActionsClient calls the encryption API over HTTP on behalf of the user
// the bearer token was issued to. It implements services.RemoteActions.
type ActionsClient struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ services.RemoteActions = (*ActionsClient)(nil)

// New returns a client for baseURL, e.g. http://localhost:8080/api/v1.
// A nil httpClient gets a default with a timeout.
func New(baseURL, token string, httpClient *http.Client) *ActionsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &ActionsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *ActionsClient) Enable(ctx context.Context, conversationID uuid.UUID) error {
	_, err := call[httpdto.ToggleResponse](ctx, c, http.MethodPost, encryptionPath(conversationID, "enable"), nil)
	return err
}

func (c *ActionsClient) Disable(ctx context.Context, conversationID uuid.UUID) error {
	_, err := call[httpdto.ToggleResponse](ctx, c, http.MethodPost, encryptionPath(conversationID, "disable"), nil)
	return err
}

func (c *ActionsClient) Status(ctx context.Context, conversationID uuid.UUID) (services.ConversationStatus, error) {
	return call[services.ConversationStatus](ctx, c, http.MethodGet, encryptionPath(conversationID, "status"), nil)
}

func (c *ActionsClient) Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	resp, err := call[httpdto.ParticipantsResponse](ctx, c, http.MethodGet, "/conversations/"+conversationID.String()+"/participants", nil)
	if err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

func (c *ActionsClient) Keys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error) {
	dtos, err := call[[]httpdto.ConversationKeyDTO](ctx, c, http.MethodGet, encryptionPath(conversationID, "keys"), nil)
	if err != nil {
		return nil, err
	}
	keys := make([]encryption.ConversationKey, 0, len(dtos))
	for _, d := range dtos {
		keys = append(keys, d.ToDomain())
	}
	return keys, nil
}

func (c *ActionsClient) Notifications(ctx context.Context, conversationID uuid.UUID) ([]encryption.Notification, error) {
	dtos, err := call[[]httpdto.NotificationDTO](ctx, c, http.MethodGet, encryptionPath(conversationID, "notifications"), nil)
	if err != nil {
		return nil, err
	}
	items := make([]encryption.Notification, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, d.ToDomain())
	}
	return items, nil
}

func (c *ActionsClient) KeyExchange(ctx context.Context, conversationID uuid.UUID, action services.KeyExchangeAction) (services.FanoutResult, error) {
	return call[services.FanoutResult](ctx, c, http.MethodPost, encryptionPath(conversationID, "key_exchange"), action)
}

func (c *ActionsClient) RotateKeys(ctx context.Context, conversationID uuid.UUID, action services.RotationAction) (services.FanoutResult, error) {
	return call[services.FanoutResult](ctx, c, http.MethodPost, encryptionPath(conversationID, "rotate_keys"), action)
}

func encryptionPath(conversationID uuid.UUID, action string) string {
	return "/conversations/" + conversationID.String() + "/encryption/" + action
}

func call[T any](ctx context.Context, c *ActionsClient, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var envelope httpdto.Response[T]
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return zero, fmt.Errorf("%s %s: status %d: %w", method, path, res.StatusCode, err)
	}
	if !envelope.Success {
		return zero, httpdto.ErrorFromCode(envelope.Code, envelope.Error)
	}
	return envelope.Data, nil
}
