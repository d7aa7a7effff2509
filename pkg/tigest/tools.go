package tigest

import (
	"context"
	"sync"
)

// Tool names the backend may call.
const (
	ToolCaptureLeadInfo        = "capture_lead_info"
	ToolGetCalendarAvailabilty = "get_calendar_availability"
	ToolTerminateCall          = "terminate_call"
)

// ToolDeclaration describes one callable tool to the backend.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolDeclarations returns the declarations sent in the transport
// setup message.
func ToolDeclarations() []ToolDeclaration {
	return []ToolDeclaration{
		{
			Name:        ToolCaptureLeadInfo,
			Description: "Records lead details into the business CRM.",
			Parameters: map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"name":            map[string]interface{}{"type": "STRING"},
					"email":           map[string]interface{}{"type": "STRING"},
					"business_nature": map[string]interface{}{"type": "STRING"},
				},
				"required": []string{"name", "email"},
			},
		},
		{
			Name:        ToolGetCalendarAvailabilty,
			Description: "Fetches available time slots from the calendar. Use this when the user asks about availability, scheduling, or what times are open. Returns a list of available time slots that can be used for booking.",
			Parameters: map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"date": map[string]interface{}{
						"type":        "STRING",
						"description": "Optional date in YYYY-MM-DD format. If not provided, defaults to today and next few days.",
					},
					"duration_minutes": map[string]interface{}{
						"type":        "NUMBER",
						"description": "Optional duration in minutes for the appointment. Defaults to 30 if not specified.",
					},
				},
				"required": []string{},
			},
		},
		{
			Name:        ToolTerminateCall,
			Description: "Ends the voice session and closes the connection.",
			Parameters: map[string]interface{}{
				"type":       "OBJECT",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// ToolResponder sends one tool response back over the transport,
// correlated by call id.
type ToolResponder func(callID, name string, response map[string]interface{})

// Dispatcher routes backend-issued function calls to their handlers.
// Every dispatched call is answered exactly once.
type Dispatcher struct {
	sessionID string
	calendar  *CalendarClient
	logger    *Logger

	// onTerminate sets the session's pending-termination flag. Actual
	// shutdown is deferred until playback drains so the closing remark
	// is not cut off.
	onTerminate func()

	mu   sync.Mutex
	lead LeadRecord
}

func NewDispatcher(sessionID string, calendar *CalendarClient, onTerminate func()) *Dispatcher {
	return &Dispatcher{
		sessionID:   sessionID,
		calendar:    calendar,
		onTerminate: onTerminate,
		logger:      GetGlobalLogger().WithComponent("tools").WithSession(sessionID),
	}
}

// Lead returns a copy of the collected lead record.
func (d *Dispatcher) Lead() LeadRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	lead := d.lead
	if lead.Extra != nil {
		extra := make(map[string]interface{}, len(lead.Extra))
		for k, v := range lead.Extra {
			extra[k] = v
		}
		lead.Extra = extra
	}
	return lead
}

// Reset clears the collected lead record for a fresh call.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.lead = LeadRecord{}
	d.mu.Unlock()
}

// Dispatch handles every call in one backend message, sequentially and
// in order. It blocks on collaborator round-trips, so the session runs
// it off the transport read loop.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []FunctionCall, respond ToolResponder) {
	for _, fc := range calls {
		d.logger.LogToolEvent(fc.Name, fc.ID, nil)
		switch fc.Name {
		case ToolTerminateCall:
			respond(fc.ID, fc.Name, map[string]interface{}{"status": "hanging_up"})
			if d.onTerminate != nil {
				d.onTerminate()
			}
		case ToolCaptureLeadInfo:
			d.mu.Lock()
			d.lead.Merge(fc.Args)
			d.mu.Unlock()
			respond(fc.ID, fc.Name, map[string]interface{}{"success": true})
		case ToolGetCalendarAvailabilty:
			respond(fc.ID, fc.Name, d.availability(ctx, fc))
		default:
			d.logger.WithField("tool", fc.Name).Warn("Unknown tool call")
			respond(fc.ID, fc.Name, map[string]interface{}{
				"success": false,
				"error":   "Unknown function: " + fc.Name,
			})
		}
	}
}

func (d *Dispatcher) availability(ctx context.Context, fc FunctionCall) map[string]interface{} {
	if !d.calendar.Configured() {
		d.logger.Warn("Calendar availability endpoint not configured")
		return map[string]interface{}{
			"success": false,
			"error":   "Calendar availability feature is not configured.",
		}
	}

	req := AvailabilityRequest{
		SessionID:       d.sessionID,
		DurationMinutes: 30,
	}
	if date, ok := fc.Args["date"].(string); ok {
		req.Date = date
	}
	if mins, ok := fc.Args["duration_minutes"].(float64); ok && mins > 0 {
		req.DurationMinutes = int(mins)
	}

	resp, err := d.calendar.Availability(ctx, req)
	if err != nil {
		d.logger.WithError(err).Error("Calendar availability fetch failed")
		return map[string]interface{}{
			"success": false,
			"error":   "Unable to fetch calendar availability at this time. Please try again later.",
		}
	}

	return map[string]interface{}{
		"success":         true,
		"available_slots": resp.AvailableSlots,
		"message":         resp.Message,
	}
}
