package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fanpay/internal/domain/ports/adapter"
)

var _ adapter.ProfileUpdater = (*HTTPProfileUpdater)(nil)

// HTTPProfileUpdater pushes subscriber-count and earnings deltas to the
// profile service. Both calls are fire-and-forget; the profile service
// reconciles from the ledger on its own schedule.
type HTTPProfileUpdater struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

func NewHTTPProfileUpdater(baseURL string, logger *zerolog.Logger) *HTTPProfileUpdater {
	pl := logger.With().Str("component", "ProfileUpdater").Logger()
	return &HTTPProfileUpdater{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     &pl,
	}
}

func (p *HTTPProfileUpdater) post(ctx context.Context, creatorID, path string, payload interface{}) {
	u := p.baseURL + "/internal/creators/" + url.PathEscape(creatorID) + path
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("creator_id", creatorID).Msg("marshal profile update")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		p.log.Error().Err(err).Str("creator_id", creatorID).Msg("build profile request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		p.log.Warn().Err(err).Str("creator_id", creatorID).Str("path", path).Msg("profile update failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.log.Warn().Int("status", resp.StatusCode).Str("creator_id", creatorID).Msg("profile update rejected")
	}
}

func (p *HTTPProfileUpdater) SubscriberDelta(ctx context.Context, creatorID string, delta int) {
	p.post(ctx, creatorID, "/subscribers", map[string]int{"delta": delta})
}

func (p *HTTPProfileUpdater) EarningsAccrued(ctx context.Context, creatorID string, amount string, currency string) {
	p.post(ctx, creatorID, "/earnings", map[string]string{"amount": amount, "currency": currency})
}
