// Package clients talks to the care-platform data service that owns client (resident) records.
package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"wisefido-ews/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ClientInfo is the subset of a resident record needed for enrollment.
type ClientInfo struct {
	ResidentID string `json:"resident_id"`
	Nickname   string `json:"nickname"`
	Status     string `json:"status"`
	BranchTag  string `json:"branch_tag"`
	UnitID     string `json:"unit_id"`
}

// Active reports whether the resident can be enrolled.
func (c *ClientInfo) Active() bool {
	return c.Status == "" || c.Status == "active"
}

// registryResponse is the data service's result envelope.
type registryResponse struct {
	Code    int        `json:"code"`
	Type    string     `json:"type"`
	Message string     `json:"message"`
	Result  ClientInfo `json:"result"`
}

const registrySuccess = 2000

// Registry looks up clients in the data service.
type Registry struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewRegistry creates a Registry. token, when set, is sent as a bearer token.
func NewRegistry(baseURL, token string, logger *zap.Logger) *Registry {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &Registry{httpClient: client, logger: logger}
}

// GetClient fetches a client. An unknown client yields models.ErrNotFound; transport or server
// failures yield models.ErrRepositoryUnavailable.
func (r *Registry) GetClient(ctx context.Context, tenantID, clientID string) (*ClientInfo, error) {
	var response registryResponse
	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Tenant-Id", tenantID).
		SetQueryParam("tenant_id", tenantID).
		SetPathParam("id", clientID).
		SetResult(&response).
		Get("/admin/api/v1/residents/{id}")
	if err != nil {
		r.logger.Error("Client registry call failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("client registry: %w: %w", models.ErrRepositoryUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("client %s: %w", clientID, models.ErrNotFound)
	case resp.IsError():
		return nil, fmt.Errorf("client registry returned %d: %w", resp.StatusCode(), models.ErrRepositoryUnavailable)
	case response.Code != registrySuccess:
		r.logger.Warn("Client registry rejected lookup",
			zap.String("client_id", clientID),
			zap.Int("code", response.Code),
			zap.String("msg", response.Message),
		)
		return nil, fmt.Errorf("client %s: %s: %w", clientID, response.Message, models.ErrNotFound)
	}

	if response.Result.ResidentID == "" {
		response.Result.ResidentID = clientID
	}
	return &response.Result, nil
}
