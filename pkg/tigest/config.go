package tigest

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session and audio defaults. The VAD constants come from tuning
// against real microphone noise floors.
const (
	DefaultMaxCallDuration  = 300 * time.Second
	DefaultSilenceTimeout   = 15000 * time.Millisecond
	DefaultErrorGraceDelay  = 3 * time.Second
	DefaultSettleDelay      = 500 * time.Millisecond
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultBlockSize        = 2048 // 128ms at 16kHz
	DefaultNoiseFloor       = 0.005
	DefaultMinRMSThreshold  = 0.003
	DefaultVADSensitivity   = 1.15
	DefaultHangoverBlocks   = 15
	DefaultModel            = "models/gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice            = "Kore"
)

const defaultGreeting = "Introduce yourself as Sara from Tigest. Greet me warmly and ask for my name and business."

const defaultSystemInstruction = `
You are 'Sara', the lead Voice AI specialist at Tigest.

## PERSONA:
- Professional, fluent, and extremely patient.
- You demonstrate how Tigest AI receptionists work.

## TERMINATION PROTOCOL:
- IMPORTANT: When the user says goodbye or the conversation is clearly over, YOU MUST say a short closing remark and then call the 'terminate_call' tool immediately.
- Once business is concluded (lead captured or info provided), don't linger.

## CONVERSATION FLOW:
1. Greet the user, ask for their name and business type.
2. Answer questions about AI lead capture.
3. If the user asks about scheduling, availability, or booking, use the 'get_calendar_availability' tool to fetch available time slots.
4. Present the available slots to the user in a natural, conversational way.
5. Attempt to get an email for a follow-up.
`

type Config struct {
	// Backend
	Model             string `json:"model"`
	Voice             string `json:"voice"`
	SystemInstruction string `json:"system_instruction"`
	Greeting          string `json:"greeting"`

	// Credential sources
	BrokerURL string `json:"broker_url,omitempty"`
	APIKey    string `json:"-"`

	// Collaborators
	CalendarURL string `json:"calendar_url,omitempty"`
	WebhookURL  string `json:"webhook_url,omitempty"`

	// Session limits
	MaxCallDuration time.Duration `json:"max_call_duration"`
	SilenceTimeout  time.Duration `json:"silence_timeout"`
	ErrorGraceDelay time.Duration `json:"error_grace_delay"`
	SettleDelay     time.Duration `json:"settle_delay"`

	// Audio
	InputSampleRate  int  `json:"input_sample_rate"`
	OutputSampleRate int  `json:"output_sample_rate"`
	BlockSize        int  `json:"block_size"`
	AudioDeviceID    *int `json:"audio_device_id,omitempty"`

	// VAD
	NoiseFloor      float64 `json:"noise_floor"`
	MinRMSThreshold float64 `json:"min_rms_threshold"`
	VADSensitivity  float64 `json:"vad_sensitivity"`
	HangoverBlocks  int     `json:"hangover_blocks"`

	// Debug
	DebugWebsocket bool `json:"debug_websocket"`
	DebugAudio     bool `json:"debug_audio"`
}

func NewConfig() *Config {
	c := &Config{
		Model:             DefaultModel,
		Voice:             DefaultVoice,
		SystemInstruction: defaultSystemInstruction,
		Greeting:          defaultGreeting,
		MaxCallDuration:   DefaultMaxCallDuration,
		SilenceTimeout:    DefaultSilenceTimeout,
		ErrorGraceDelay:   DefaultErrorGraceDelay,
		SettleDelay:       DefaultSettleDelay,
		InputSampleRate:   DefaultInputSampleRate,
		OutputSampleRate:  DefaultOutputSampleRate,
		BlockSize:         DefaultBlockSize,
		NoiseFloor:        DefaultNoiseFloor,
		MinRMSThreshold:   DefaultMinRMSThreshold,
		VADSensitivity:    DefaultVADSensitivity,
		HangoverBlocks:    DefaultHangoverBlocks,
	}

	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if v := os.Getenv("TIGEST_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("TIGEST_VOICE"); v != "" {
		c.Voice = v
	}
	if v := os.Getenv("TIGEST_SYSTEM_INSTRUCTION"); v != "" {
		c.SystemInstruction = v
	}
	if v := os.Getenv("TIGEST_GREETING"); v != "" {
		c.Greeting = v
	}

	c.BrokerURL = os.Getenv("TIGEST_API_KEY_URL")
	c.APIKey = os.Getenv("TIGEST_API_KEY")
	c.CalendarURL = os.Getenv("TIGEST_CALENDAR_URL")
	c.WebhookURL = os.Getenv("TIGEST_TRANSCRIPT_WEBHOOK_URL")

	if v := os.Getenv("TIGEST_MAX_CALL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.MaxCallDuration = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("TIGEST_SILENCE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.SilenceTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("TIGEST_AUDIO_DEVICE_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.AudioDeviceID = &id
		}
	}

	if v := os.Getenv("TIGEST_MIN_RMS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.MinRMSThreshold = f
		}
	}
	if v := os.Getenv("TIGEST_VAD_SENSITIVITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.VADSensitivity = f
		}
	}

	c.DebugWebsocket = os.Getenv("TIGEST_DEBUG_WEBSOCKET") == "true"
	c.DebugAudio = os.Getenv("TIGEST_DEBUG_AUDIO") == "true"
}

// Validate returns a list of configuration issues. Missing optional
// collaborator URLs are warnings expressed at call time, not issues.
func (c *Config) Validate() []string {
	issues := []string{}

	if c.BrokerURL == "" && c.APIKey == "" {
		issues = append(issues, "no credential source: set TIGEST_API_KEY_URL or TIGEST_API_KEY")
	}
	if c.BrokerURL != "" && !strings.HasPrefix(c.BrokerURL, "http") {
		issues = append(issues, "TIGEST_API_KEY_URL must be an http(s) URL")
	}
	if c.CalendarURL != "" && !strings.HasPrefix(c.CalendarURL, "http") {
		issues = append(issues, "TIGEST_CALENDAR_URL must be an http(s) URL")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http") {
		issues = append(issues, "TIGEST_TRANSCRIPT_WEBHOOK_URL must be an http(s) URL")
	}
	if c.Model == "" {
		issues = append(issues, "model must not be empty")
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		issues = append(issues, "sample rates must be positive")
	}
	if c.BlockSize <= 0 {
		issues = append(issues, "block size must be positive")
	}
	if c.MaxCallDuration <= 0 {
		issues = append(issues, "max call duration must be positive")
	}
	if c.SilenceTimeout <= 0 {
		issues = append(issues, "silence timeout must be positive")
	}
	if c.VADSensitivity < 1.0 {
		issues = append(issues, fmt.Sprintf("vad sensitivity %.2f below 1.0 would gate on the noise floor itself", c.VADSensitivity))
	}
	if c.HangoverBlocks < 0 {
		issues = append(issues, "hangover blocks must not be negative")
	}

	return issues
}

func (c *Config) PrintConfig() {
	fmt.Println("🎙  Tigest Voice SDK Configuration")
	fmt.Println("==================================================")

	if c.APIKey != "" {
		fmt.Printf("Static API Key: %s...\n", c.APIKey[:min(len(c.APIKey), 8)])
	} else {
		fmt.Println("Static API Key: NOT SET")
	}
	if c.BrokerURL != "" {
		fmt.Printf("Credential Broker: %s\n", c.BrokerURL)
	} else {
		fmt.Println("Credential Broker: NOT SET")
	}
	if c.CalendarURL != "" {
		fmt.Printf("Calendar URL: %s\n", c.CalendarURL)
	} else {
		fmt.Println("Calendar URL: NOT SET (availability tool degrades)")
	}
	if c.WebhookURL != "" {
		fmt.Printf("Transcript Webhook: %s\n", c.WebhookURL)
	} else {
		fmt.Println("Transcript Webhook: NOT SET (post-call delivery skipped)")
	}
	fmt.Printf("Model: %s\n", c.Model)
	fmt.Printf("Voice: %s\n", c.Voice)
	fmt.Printf("Max Call Duration: %s\n", c.MaxCallDuration)
	fmt.Printf("Silence Timeout: %s\n", c.SilenceTimeout)
	fmt.Printf("Input/Output Sample Rate: %d/%d Hz\n", c.InputSampleRate, c.OutputSampleRate)
	fmt.Printf("Block Size: %d samples\n", c.BlockSize)
	fmt.Printf("VAD: floor=%.4f min=%.4f sensitivity=%.2f hangover=%d\n",
		c.NoiseFloor, c.MinRMSThreshold, c.VADSensitivity, c.HangoverBlocks)
	if c.AudioDeviceID != nil {
		fmt.Printf("Audio Device ID: %d\n", *c.AudioDeviceID)
	} else {
		fmt.Println("Audio Device: Default")
	}
	fmt.Printf("Debug WebSocket: %t\n", c.DebugWebsocket)
	fmt.Printf("Debug Audio: %t\n", c.DebugAudio)
}

// BlockDuration returns the wall-clock length of one capture block.
func (c *Config) BlockDuration() time.Duration {
	return time.Duration(float64(c.BlockSize) / float64(c.InputSampleRate) * float64(time.Second))
}
