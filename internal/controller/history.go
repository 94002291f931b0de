package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/observatory-dash/backend/internal/event"
	"github.com/rs/zerolog"
)

// ErrHistoryUnsuccessful is returned when the controller answers with
// Success=false.
var ErrHistoryUnsuccessful = errors.New("controller reported unsuccessful history request")

const defaultHistoryTimeout = 10 * time.Second

type historyResponse struct {
	Success  bool             `json:"Success"`
	Error    string           `json:"Error"`
	Type     string           `json:"Type"`
	Response []map[string]any `json:"Response"`
}

// HistoryClient fetches the controller's event history.
type HistoryClient struct {
	url     string
	client  *http.Client
	decoder event.Decoder
	logger  zerolog.Logger
	now     func() time.Time
}

func NewHistoryClient(url string, timeout time.Duration, loc *time.Location, logger zerolog.Logger) *HistoryClient {
	if timeout <= 0 {
		timeout = defaultHistoryTimeout
	}
	return &HistoryClient{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		decoder: event.Decoder{Location: loc},
		logger:  logger,
		now:     time.Now,
	}
}

// FetchHistory returns the controller's history oldest first. Entries
// without a type are skipped.
func (h *HistoryClient) FetchHistory(ctx context.Context) ([]event.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: %d %s", h.url, resp.StatusCode, string(body))
	}

	var hr historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if !hr.Success {
		if hr.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrHistoryUnsuccessful, hr.Error)
		}
		return nil, ErrHistoryUnsuccessful
	}

	receivedAt := h.now()
	events := make([]event.Event, 0, len(hr.Response))
	skipped := 0
	for _, raw := range hr.Response {
		ev, err := h.decoder.FromMap(raw, receivedAt)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if skipped > 0 {
		h.logger.Debug().Int("skipped", skipped).Msg("history entries without a type")
	}
	return events, nil
}
