// Package stateprovider fetches the user's current state from the state
// service and degrades to a neutral state when it is unavailable.
package stateprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/models"
)

// DefaultTimeout bounds a single state request.
const DefaultTimeout = 5 * time.Second

// ErrNotConfigured is returned by Fetch when no base URL is set.
var ErrNotConfigured = errors.New("state service url not configured")

// Provider returns the current state of a user.
type Provider interface {
	Current(ctx context.Context, userID string) models.UserState
}

// Client talks to the state service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock used to stamp states.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the service at baseURL. An empty baseURL makes
// every lookup return the neutral state.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wireState is the state service response.
type wireState struct {
	Energy         *float64 `json:"energy"`
	Focus          *float64 `json:"focus"`
	Stress         *float64 `json:"stress"`
	Motivation     *float64 `json:"motivation"`
	EnergyAdjusted float64  `json:"energy_adjusted"`
	FocusAdjusted  float64  `json:"focus_adjusted"`
	EnergyTrend    float64  `json:"energy_trend"`
	FocusTrend     float64  `json:"focus_trend"`
	Circadian      *struct {
		Phase  string  `json:"phase"`
		Factor float64 `json:"factor"`
		IsPeak bool    `json:"is_peak_time"`
	} `json:"circadian"`
}

// Current implements Provider. Any failure yields models.DefaultUserState.
func (c *Client) Current(ctx context.Context, userID string) models.UserState {
	state, err := c.Fetch(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			c.logger.Error("fetch current state failed, using default state",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
		return models.DefaultUserState(userID, c.now())
	}
	return state
}

// Fetch returns the state reported by the service without any fallback.
func (c *Client) Fetch(ctx context.Context, userID string) (models.UserState, error) {
	if c.baseURL == "" {
		return models.UserState{}, ErrNotConfigured
	}

	endpoint := c.baseURL + "/api/v1/state/user/" + url.PathEscape(userID) + "/current"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.UserState{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.UserState{}, fmt.Errorf("state request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.UserState{}, fmt.Errorf("state service error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var w wireState
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return models.UserState{}, fmt.Errorf("decode state: %w", err)
	}
	if w.Energy == nil || w.Focus == nil || w.Stress == nil || w.Motivation == nil {
		return models.UserState{}, fmt.Errorf("incomplete state for user %s", userID)
	}

	state := models.UserState{
		UserID:         userID,
		Energy:         clamp(*w.Energy, 0, 100),
		Focus:          clamp(*w.Focus, 0, 100),
		Stress:         clamp(*w.Stress, 0, 100),
		Motivation:     clamp(*w.Motivation, 0, 100),
		EnergyAdjusted: clamp(w.EnergyAdjusted, 0, 100),
		FocusAdjusted:  clamp(w.FocusAdjusted, 0, 100),
		EnergyTrend:    clamp(w.EnergyTrend, -1, 1),
		FocusTrend:     clamp(w.FocusTrend, -1, 1),
		CurrentTime:    c.now(),
	}
	if w.Circadian != nil {
		state.Circadian = models.CircadianContext{
			Phase:  models.CircadianPhase(w.Circadian.Phase),
			Factor: w.Circadian.Factor,
			IsPeak: w.Circadian.IsPeak,
		}
	}
	return state, nil
}

// Static always returns the same state, stamped with the user it was asked for.
type Static struct {
	State models.UserState
}

// Current implements Provider.
func (s Static) Current(_ context.Context, userID string) models.UserState {
	st := s.State
	st.UserID = userID
	return st
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
