package tigest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CalendarClient talks to the external scheduling availability
// collaborator.
type CalendarClient struct {
	url        string
	httpClient *http.Client
	logger     *Logger
}

func NewCalendarClient(url string) *CalendarClient {
	return &CalendarClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		logger: GetGlobalLogger().WithComponent("calendar"),
	}
}

// Configured reports whether the collaborator endpoint is set.
func (cc *CalendarClient) Configured() bool {
	return cc != nil && cc.url != ""
}

// Availability requests bookable slots. A missing endpoint or a
// collaborator failure comes back as an error; the dispatcher turns it
// into a structured payload so the conversation continues degraded.
func (cc *CalendarClient) Availability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResponse, error) {
	if !cc.Configured() {
		return nil, NewConfigurationError("calendar availability endpoint not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, WrapError(err, ErrCodeJSONParse)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cc.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, NewToolInvocationError(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "TigestVoiceSDK-Go/1.0")

	resp, err := cc.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewToolInvocationError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewToolInvocationError(fmt.Sprintf("availability endpoint returned %s", resp.Status)).
			AddDetail("status", resp.StatusCode)
	}

	var out AvailabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(err, ErrCodeJSONParse)
	}
	if out.Message == "" {
		out.Message = "Here are the available time slots."
	}
	if out.AvailableSlots == nil {
		out.AvailableSlots = []AvailabilitySlot{}
	}

	cc.logger.WithField("slots", len(out.AvailableSlots)).Debug("Availability fetched")
	return &out, nil
}
