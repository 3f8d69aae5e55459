package twilioclient

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/internal/config"
)

const defaultBaseURL = "https://api.twilio.com"

// requestTimeout bounds a single API call; retries are the caller's job
const requestTimeout = 10 * time.Second

// Client wraps the Twilio Messages REST API
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	mock       bool
}

// NewClient creates a Twilio client from configuration. In mock mode no
// credentials are needed and nothing leaves the process.
func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if !cfg.Twilio.MockSending {
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			return nil, fmt.Errorf("twilio credentials are required unless mock sending is enabled")
		}
		if cfg.Twilio.FromNumber == "" {
			return nil, fmt.Errorf("twilio from number is required unless mock sending is enabled")
		}
	}

	baseURL := cfg.Twilio.APIBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		accountSID: cfg.Twilio.AccountSID,
		authToken:  cfg.Twilio.AuthToken,
		from:       cfg.Twilio.FromNumber,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		mock:       cfg.Twilio.MockSending,
	}, nil
}
