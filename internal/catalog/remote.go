package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
)

// TokenSource supplies the bearer token for service-to-service calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RemoteCatalog fetches quests from the quest content service over HTTP.
type RemoteCatalog struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  *logger.Logger
}

func NewRemote(baseURL string, client *http.Client, tokens TokenSource, log *logger.Logger) *RemoteCatalog {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	return &RemoteCatalog{baseURL: baseURL, client: client, tokens: tokens, logger: log}
}

// GetQuest calls GET {base}/internal/v1/quests/{id}. A 404 maps to
// ErrQuestNotFound; network errors and 5xx responses are transient.
func (c *RemoteCatalog) GetQuest(ctx context.Context, questID string) (*models.Quest, error) {
	requestURL := fmt.Sprintf("%s/internal/v1/quests/%s", c.baseURL, url.PathEscape(questID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, models.Transient("catalog.token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("CATALOG", fmt.Sprintf("Quest service error: %v", err))
		return nil, models.Transient("catalog.get_quest", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, models.ErrQuestNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, models.Transient("catalog.get_quest", fmt.Errorf("quest service returned status: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("CATALOG", fmt.Sprintf("Quest service returned %d: %s", resp.StatusCode, string(body)))
		return nil, fmt.Errorf("quest service returned status: %d", resp.StatusCode)
	}

	var q models.Quest
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil, fmt.Errorf("failed to decode quest response: %w", err)
	}
	if q.ID == "" {
		q.ID = questID
	}
	return &q, nil
}
