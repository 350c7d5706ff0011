package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/adapter"
)

var _ adapter.ContentGateway = (*HTTPContentGateway)(nil)

// HTTPContentGateway talks to the content service's internal API for PPV
// pricing and unlock signals.
type HTTPContentGateway struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

func NewHTTPContentGateway(baseURL string, logger *zerolog.Logger) *HTTPContentGateway {
	cl := logger.With().Str("component", "ContentGateway").Logger()
	return &HTTPContentGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     &cl,
	}
}

func (g *HTTPContentGateway) PPVPrice(ctx context.Context, postID string) (string, int64, error) {
	u := g.baseURL + "/internal/posts/" + url.PathEscape(postID) + "/ppv"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("content service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", 0, domain.ErrNotFound
	case http.StatusConflict, http.StatusBadRequest:
		// post exists but is not pay-per-view
		return "", 0, domain.ErrInvalidArgument
	default:
		return "", 0, fmt.Errorf("content service status %d: %w", resp.StatusCode, domain.ErrOperationFailed)
	}

	var body struct {
		CreatorID  string `json:"creatorId"`
		PriceCoins int64  `json:"priceCoins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("content service decode: %w", err)
	}
	if body.CreatorID == "" || body.PriceCoins <= 0 {
		return "", 0, domain.ErrInvalidArgument
	}
	return body.CreatorID, body.PriceCoins, nil
}

// Unlocked is fire-and-forget. An unreachable content service must not
// roll back a settled payment; the unlock is re-derivable from the ledger.
func (g *HTTPContentGateway) Unlocked(ctx context.Context, postID, userID string) {
	u := g.baseURL + "/internal/posts/" + url.PathEscape(postID) + "/unlocks"
	payload, _ := json.Marshal(map[string]string{"userId": userID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		g.log.Error().Err(err).Str("post_id", postID).Msg("build unlock request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.http.Do(req)
	if err != nil {
		g.log.Warn().Err(err).Str("post_id", postID).Str("user_id", userID).Msg("unlock signal failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		g.log.Warn().Int("status", resp.StatusCode).Str("post_id", postID).Msg("unlock signal rejected")
	}
}
