package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qbit/internal/model"
)

// ServiceClient asks the account service to validate a token
// (POST <url>/internal/validate).
type ServiceClient struct {
	url    string
	client *http.Client
}

func NewServiceClient(url string, client *http.Client) *ServiceClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ServiceClient{url: strings.TrimRight(url, "/"), client: client}
}

type validateResponse struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

func (s *ServiceClient) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/internal/validate", bytes.NewReader(body))
	if err != nil {
		return model.Identity{}, fmt.Errorf("auth service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: auth service: %v", ErrUnauthorized, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Identity{}, fmt.Errorf("%w: auth service status %d", ErrUnauthorized, resp.StatusCode)
	}
	var result validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.UserID == "" {
		return model.Identity{}, fmt.Errorf("%w: auth service returned no user", ErrUnauthorized)
	}
	return model.Identity{
		UserID:    result.UserID,
		Name:      result.Name,
		Email:     result.Email,
		AvatarURL: result.AvatarURL,
	}, nil
}
