package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"
)

const (
	DefaultElevenBaseURL = "https://api.elevenlabs.io"
	DefaultTwilioBaseURL = "https://api.twilio.com"

	elevenModelID = "eleven_multilingual_v2"
	// maxSpokenChars bounds text sent to speech synthesis.
	maxSpokenChars = 1200
)

// ErrVoiceNotConfigured is returned when a call is requested without
// Twilio credentials.
var ErrVoiceNotConfigured = errors.New("voice calls are not configured")

// AudioStore keeps generated speech for a short time so the call provider
// can fetch it.
type AudioStore struct {
	cache *expirable.LRU[string, []byte]
}

// NewAudioStore creates a store holding up to size clips for ttl.
func NewAudioStore(size int, ttl time.Duration) *AudioStore {
	if size <= 0 {
		size = 32
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AudioStore{cache: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Put stores a clip and returns its id.
func (s *AudioStore) Put(data []byte) string {
	id := uuid.NewString()
	s.cache.Add(id, data)
	return id
}

// Get returns a stored clip.
func (s *AudioStore) Get(id string) ([]byte, bool) {
	return s.cache.Get(id)
}

// VoiceConfig configures a VoiceNotifier.
type VoiceConfig struct {
	ElevenAPIKey  string
	VoiceID       string
	AccountSID    string
	AuthToken     string
	From          string
	DefaultPhone  string
	PublicBaseURL string

	ElevenBaseURL string
	TwilioBaseURL string
	HTTPClient    *http.Client
}

// VoiceNotifier places a phone call that plays the alert. With ElevenLabs
// and a public base URL configured it plays synthesized speech served from
// the AudioStore; otherwise Twilio reads the text itself.
type VoiceNotifier struct {
	cfg   VoiceConfig
	audio *AudioStore
	http  *http.Client
}

// NewVoiceNotifier creates a voice notifier. audio may be nil when no public
// base URL is available.
func NewVoiceNotifier(cfg VoiceConfig, audio *AudioStore) *VoiceNotifier {
	if cfg.ElevenBaseURL == "" {
		cfg.ElevenBaseURL = DefaultElevenBaseURL
	}
	if cfg.TwilioBaseURL == "" {
		cfg.TwilioBaseURL = DefaultTwilioBaseURL
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &VoiceNotifier{cfg: cfg, audio: audio, http: client}
}

// Configured reports whether calls can be placed.
func (v *VoiceNotifier) Configured() bool {
	return v.cfg.AccountSID != "" && v.cfg.AuthToken != "" && v.cfg.From != ""
}

// Notify implements Notifier.
func (v *VoiceNotifier) Notify(ctx context.Context, alert Alert) error {
	phone := alert.Phone
	if phone == "" {
		phone = v.cfg.DefaultPhone
	}
	if phone == "" {
		return fmt.Errorf("voice alert: no phone number")
	}
	_, err := v.Call(ctx, phone, alert.Text())
	return err
}

// Call places a call to phone that speaks message and returns the call SID.
func (v *VoiceNotifier) Call(ctx context.Context, phone, message string) (string, error) {
	if !v.Configured() {
		return "", ErrVoiceNotConfigured
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("voice call: empty message")
	}
	if len(message) > maxSpokenChars {
		message = message[:maxSpokenChars]
	}

	twiml, err := v.twiml(ctx, message)
	if err != nil {
		return "", err
	}
	return v.createCall(ctx, phone, twiml)
}

// twiml builds the call instructions.
func (v *VoiceNotifier) twiml(ctx context.Context, message string) (string, error) {
	if v.audio != nil && v.cfg.PublicBaseURL != "" && v.cfg.ElevenAPIKey != "" && v.cfg.VoiceID != "" {
		clip, err := v.synthesize(ctx, message)
		if err != nil {
			return "", err
		}
		id := v.audio.Put(clip)
		return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Play>%s/audio/%s</Play></Response>`,
			escapeXML(v.cfg.PublicBaseURL), id), nil
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Say>%s</Say></Response>`, escapeXML(message)), nil
}

// synthesize converts text to MP3 with ElevenLabs.
func (v *VoiceNotifier) synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "model_id": elevenModelID})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(v.cfg.ElevenBaseURL, "/"), url.PathEscape(v.cfg.VoiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("xi-api-key", v.cfg.ElevenAPIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	log.Printf("[notify] synthesized %d bytes of speech", len(body))
	return body, nil
}

// createCall starts an outbound Twilio call with inline TwiML.
func (v *VoiceNotifier) createCall(ctx context.Context, phone, twiml string) (string, error) {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", v.cfg.From)
	form.Set("Twiml", twiml)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", strings.TrimRight(v.cfg.TwilioBaseURL, "/"), url.PathEscape(v.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create call request: %w", err)
	}
	req.SetBasicAuth(v.cfg.AccountSID, v.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read call response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("twilio error: status %d: %s", resp.StatusCode, msg)
	}

	sid := gjson.GetBytes(body, "sid").String()
	log.Printf("[notify] call %s placed to %s", sid, phone)
	return sid, nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
