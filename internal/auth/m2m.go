package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-questbooking/internal/logger"
)

type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type m2mTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// M2MTokenSource hands out service tokens from the client credentials grant,
// going to the identity provider only when the shared cache is empty.
type M2MTokenSource struct {
	creds  ClientCredentials
	client *http.Client
	cache  *RedisTokenCache
	log    *logger.Logger
}

func NewM2MTokenSource(creds ClientCredentials, client *http.Client, cache *RedisTokenCache, log *logger.Logger) *M2MTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	return &M2MTokenSource{creds: creds, client: client, cache: cache, log: log}
}

func (s *M2MTokenSource) Token(ctx context.Context) (string, error) {
	if s.cache != nil {
		cached, err := s.cache.GetToken(ctx)
		if err != nil {
			s.log.Warn("AUTH", fmt.Sprintf("Token cache unavailable: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if s.cache != nil && tok.ExpiresIn > 0 {
		if err := s.cache.SetToken(ctx, tok.AccessToken, time.Duration(tok.ExpiresIn)*time.Second); err != nil {
			s.log.Warn("AUTH", fmt.Sprintf("Failed to cache service token: %v", err))
		}
	}
	return tok.AccessToken, nil
}

func (s *M2MTokenSource) fetch(ctx context.Context) (*m2mTokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", s.creds.ClientID)
	data.Set("client_secret", s.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.creds.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to get token, status: %s: %s", resp.Status, string(body))
	}

	var tok m2mTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	s.log.Info("AUTH", fmt.Sprintf("Obtained service token for client %s (expires in %ds)", s.creds.ClientID, tok.ExpiresIn))
	return &tok, nil
}
