package twilioclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
)

// messageResponse is the subset of Twilio's Messages API response we use
type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers one SMS through the Twilio Messages API. Failures come
// back as *dispatch.GatewayError carrying the retry classification.
func (c *Client) Send(ctx context.Context, to, body string) (*dispatch.SendResult, error) {
	if c.mock {
		c.logger.Info("Mock sending enabled, not sending SMS",
			zap.String("to", dispatch.MaskPhone(to)),
			zap.String("body", body))
		return &dispatch.SendResult{
			ProviderSID: "MOCK-" + uuid.New().String(),
			Status:      "sent",
		}, nil
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures and timeouts are worth another attempt
		return nil, &dispatch.GatewayError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dispatch.GatewayError{Message: fmt.Sprintf("failed to read response: %v", err), Retryable: true}
	}

	var parsed messageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &dispatch.GatewayError{
			Message:   fmt.Sprintf("unparseable response (HTTP %d): %.200s", resp.StatusCode, respBody),
			Retryable: resp.StatusCode >= 500,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &dispatch.SendResult{ProviderSID: parsed.SID, Status: parsed.Status}, nil
	}

	return nil, &dispatch.GatewayError{
		Code:      parsed.Code,
		Message:   parsed.Message,
		Retryable: isRetryableResponse(resp.StatusCode, parsed.Code),
	}
}

// isRetryableResponse classifies a Twilio error response. Throttling,
// server faults and carrier-side delivery errors merit another attempt;
// bad numbers and account configuration problems never will.
func isRetryableResponse(httpStatus, twilioCode int) bool {
	if httpStatus == http.StatusTooManyRequests || httpStatus >= 500 {
		return true
	}

	switch twilioCode {
	case 20003: // authentication failure, may be a transient token rotation
		return true
	case 20429: // too many requests
		return true
	case 21610: // recipient temporarily unreachable
		return true
	}
	// 30xxx are message delivery errors from the carrier side
	if twilioCode >= 30000 && twilioCode < 31000 {
		return true
	}

	return false
}
