package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

type fakeScores map[string]models.TickerScore

func (f fakeScores) GetScore(_ context.Context, ticker string, kind models.ScoreKind) (*models.TickerScore, error) {
	s, ok := f[ticker+"/"+string(kind)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestTrigger_Check(t *testing.T) {
	scores := fakeScores{
		"NVDA/fraud": {Ticker: "NVDA", Kind: models.ScoreKindFraud, Composite: 81.5, CompanyName: "NVIDIA Corp"},
		"AAPL/fraud": {Ticker: "AAPL", Kind: models.ScoreKindFraud, Composite: 12},
	}

	t.Run("alerts above threshold", func(t *testing.T) {
		n := &recordingNotifier{}
		trigger := NewTrigger(scores, n, 70)

		sent, err := trigger.Check(context.Background(), []string{"nvda", "AAPL", "ZZZZ"}, "Summary text.")
		require.NoError(t, err)
		assert.True(t, sent)
		require.Len(t, n.alerts, 1)
		assert.Equal(t, []string{"NVDA"}, n.alerts[0].Tickers)
		text := n.alerts[0].Text()
		assert.Contains(t, text, "NVIDIA Corp (NVDA)")
		assert.Contains(t, text, "81.5")
		assert.Contains(t, text, "Summary text.")
		assert.NotContains(t, text, "AAPL")
	})

	t.Run("no alert below threshold", func(t *testing.T) {
		n := &recordingNotifier{}
		sent, err := NewTrigger(scores, n, 90).Check(context.Background(), []string{"NVDA"}, "")
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Empty(t, n.alerts)
	})

	t.Run("notifier error", func(t *testing.T) {
		n := &recordingNotifier{err: errors.New("line busy")}
		_, err := NewTrigger(scores, n, 0).Check(context.Background(), []string{"NVDA"}, "")
		assert.ErrorContains(t, err, "line busy")
	})
}

func TestTrigger_FireRunsInBackground(t *testing.T) {
	n := &recordingNotifier{}
	scores := fakeScores{"NVDA/fraud": {Ticker: "NVDA", Composite: 99}}
	trigger := NewTrigger(scores, n, 70)

	trigger.Fire([]string{"NVDA"}, "")
	trigger.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Len(t, n.alerts, 1)

	var nilTrigger *Trigger
	nilTrigger.Fire([]string{"NVDA"}, "")
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := NotifierFunc(func(context.Context, Alert) error { return errors.New("down") })

	err := Multi{bad, nil, ok}.Notify(context.Background(), Alert{Message: "hi"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.alerts, 1)
}

// fakeProviders serves the speech and call endpoints.
type fakeProviders struct {
	t        *testing.T
	server   *httptest.Server
	form     url.Values
	user     string
	speechIn string
}

func newFakeProviders(t *testing.T) *fakeProviders {
	f := &fakeProviders{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/text-to-speech/voice-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eleven-key", r.Header.Get("xi-api-key"))
		body, _ := io.ReadAll(r.Body)
		f.speechIn = string(body)
		w.Write([]byte("MP3DATA"))
	})
	mux.HandleFunc("/2010-04-01/Accounts/AC123/Calls.json", func(w http.ResponseWriter, r *http.Request) {
		f.user, _, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		f.form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProviders) config() VoiceConfig {
	return VoiceConfig{
		ElevenAPIKey:  "eleven-key",
		VoiceID:       "voice-1",
		AccountSID:    "AC123",
		AuthToken:     "secret",
		From:          "+15550000000",
		ElevenBaseURL: f.server.URL,
		TwilioBaseURL: f.server.URL,
	}
}

func TestVoiceNotifier_PlaysSynthesizedAudio(t *testing.T) {
	f := newFakeProviders(t)
	cfg := f.config()
	cfg.PublicBaseURL = "https://desk.example.com/"
	audio := NewAudioStore(4, time.Minute)

	sid, err := NewVoiceNotifier(cfg, audio).Call(context.Background(), "+15551234567", "High fraud risk for NVDA.")
	require.NoError(t, err)
	assert.Equal(t, "CA999", sid)
	assert.Equal(t, "AC123", f.user)
	assert.Contains(t, f.speechIn, `"model_id":"eleven_multilingual_v2"`)
	assert.Equal(t, "+15551234567", f.form.Get("To"))
	assert.Equal(t, "+15550000000", f.form.Get("From"))

	twiml := f.form.Get("Twiml")
	require.Contains(t, twiml, "<Play>https://desk.example.com/audio/")
	id := strings.TrimSuffix(strings.SplitN(twiml, "/audio/", 2)[1], "</Play></Response>")
	clip, ok := audio.Get(id)
	require.True(t, ok)
	assert.Equal(t, "MP3DATA", string(clip))
}

func TestVoiceNotifier_SaysTextWithoutPublicURL(t *testing.T) {
	f := newFakeProviders(t)

	_, err := NewVoiceNotifier(f.config(), nil).Call(context.Background(), "+15551234567", "Risk for A&B <now>")
	require.NoError(t, err)
	assert.Empty(t, f.speechIn)
	assert.Contains(t, f.form.Get("Twiml"), "<Say>Risk for A&amp;B &lt;now&gt;</Say>")
}

func TestVoiceNotifier_Errors(t *testing.T) {
	_, err := NewVoiceNotifier(VoiceConfig{}, nil).Call(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrVoiceNotConfigured)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer server.Close()

	v := NewVoiceNotifier(VoiceConfig{AccountSID: "AC1", AuthToken: "t", From: "+1", TwilioBaseURL: server.URL}, nil)
	_, err = v.Call(context.Background(), "bogus", "hello")
	assert.ErrorContains(t, err, "not a valid phone number")

	err = v.Notify(context.Background(), Alert{Message: "hello"})
	assert.ErrorContains(t, err, "no phone number")
}

type fakeSender struct {
	texts []string
}

func (f *fakeSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.texts = append(f.texts, p.Text)
	return &telego.Message{}, nil
}

func TestTelegramNotifier_ChunksLongAlerts(t *testing.T) {
	sender := &fakeSender{}
	n := &TelegramNotifier{sender: sender, chatID: 42}

	long := strings.Repeat("line of the summary\n", 400)
	require.NoError(t, n.Notify(context.Background(), Alert{Message: long}))

	require.Greater(t, len(sender.texts), 1)
	assert.Equal(t, long, strings.Join(sender.texts, ""))
	for _, chunk := range sender.texts {
		assert.LessOrEqual(t, len(chunk), telegramMaxMessage)
	}
}

func TestNewTelegramNotifier_RequiresChat(t *testing.T) {
	_, err := NewTelegramNotifier("123:abc", 0)
	assert.Error(t, err)
}
