package tigest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DeliveryClient submits the finished call to the post-call webhook.
// Fire-and-forget: a failed delivery is logged, never surfaced.
type DeliveryClient struct {
	url        string
	httpClient *http.Client
	logger     *Logger
}

func NewDeliveryClient(url string) *DeliveryClient {
	return &DeliveryClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: GetGlobalLogger().WithComponent("delivery"),
	}
}

// Configured reports whether the webhook endpoint is set.
func (dc *DeliveryClient) Configured() bool {
	return dc != nil && dc.url != ""
}

// Deliver posts the payload in the background. Returns immediately.
func (dc *DeliveryClient) Deliver(payload DeliveryPayload) {
	if !dc.Configured() {
		dc.logger.Warn("Transcript webhook not configured, call not delivered")
		return
	}
	if payload.AudioFile == "" && len(payload.FullTranscript) == 0 {
		dc.logger.Debug("Nothing to deliver, skipping webhook")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		body, err := json.Marshal(payload)
		if err != nil {
			dc.logger.LogError(WrapError(err, ErrCodeJSONParse))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, dc.url, bytes.NewBuffer(body))
		if err != nil {
			dc.logger.LogError(WrapError(err, ErrCodeDelivery))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := dc.httpClient.Do(req)
		if err != nil {
			dc.logger.LogError(WrapError(err, ErrCodeDelivery).AddDetail("session_id", payload.SessionID))
			return
		}
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			dc.logger.WithField("status", resp.StatusCode).
				WithField("session_id", payload.SessionID).
				Error("Webhook delivery rejected")
			return
		}

		dc.logger.WithField("session_id", payload.SessionID).
			WithField("turns", len(payload.FullTranscript)).
			Info("Call delivered")
	}()
}
