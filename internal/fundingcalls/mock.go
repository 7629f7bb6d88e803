package fundingcalls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/david/funding-monitor/internal/models"
)

// MockLoader fetches a static funding-call document over HTTP. It backs
// USE_MOCK_DATA mode.
type MockLoader struct {
	URL    string
	Client *http.Client
}

func NewMockLoader(url string) *MockLoader {
	return &MockLoader{
		URL:    url,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *MockLoader) Load(ctx context.Context) ([]models.FundingCall, error) {
	if m.URL == "" {
		return nil, fmt.Errorf("mock data URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build mock data request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch mock data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch mock data: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read mock data: %w", err)
	}

	batch, err := DecodeBatch(body)
	if err != nil {
		return nil, err
	}
	return batch.Rows(), nil
}
