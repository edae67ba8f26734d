// Package assemblyai implements stt.Provider against an AssemblyAI-shaped
// streaming v3 API (spec §6): an HTTPS token endpoint followed by a
// query-string-configured WebSocket that speaks Transcript/Turn JSON
// frames.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/voxrelay/voxrelay/pkg/provider/stt"
)

const (
	defaultBaseURL       = "https://api.assemblyai.com"
	defaultWSBaseURL     = "wss://api.assemblyai.com"
	defaultTokenTTL      = 480 * time.Second
	defaultConnectTimeout = 10 * time.Second
	refreshFraction      = 0.8
)

// Option configures a Provider at construction.
type Option func(*Provider)

// WithBaseURL overrides the HTTPS token endpoint's scheme+host.
func WithBaseURL(u string) Option { return func(p *Provider) { p.baseURL = u } }

// WithWSBaseURL overrides the WebSocket endpoint's scheme+host.
func WithWSBaseURL(u string) Option { return func(p *Provider) { p.wsBaseURL = u } }

// WithTokenTTL overrides the ephemeral token's requested lifetime.
func WithTokenTTL(d time.Duration) Option { return func(p *Provider) { p.tokenTTL = d } }

// WithConnectTimeout bounds the initial token fetch + WebSocket dial.
func WithConnectTimeout(d time.Duration) Option { return func(p *Provider) { p.connectTimeout = d } }

// Provider implements stt.Provider.
type Provider struct {
	apiKey         string
	baseURL        string
	wsBaseURL      string
	tokenTTL       time.Duration
	connectTimeout time.Duration
	httpClient     *http.Client
}

// New builds a Provider. apiKey is required.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		baseURL:        defaultBaseURL,
		wsBaseURL:      defaultWSBaseURL,
		tokenTTL:       defaultTokenTTL,
		connectTimeout: defaultConnectTimeout,
		httpClient:     &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Connect implements stt.Provider.
func (p *Provider) Connect(ctx context.Context, cfg stt.Config, sink stt.EventSink) (stt.Handle, error) {
	if sink == nil {
		return nil, errors.New("assemblyai: sink must not be nil")
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: connect: %w", err)
	}

	h := &handle{
		provider: p,
		cfg:      cfg,
		sink:     sink,
	}
	h.conn.Store(conn)
	h.wg.Add(1)
	go h.readLoop(conn)
	h.scheduleRefresh()

	return h, nil
}

// fetchToken requests a fresh ephemeral token good for p.tokenTTL.
func (p *Provider) fetchToken(ctx context.Context) (string, error) {
	u := strings.TrimRight(p.baseURL, "/") + "/v3/token?expires_in_seconds=" + strconv.Itoa(int(p.tokenTTL.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("token response missing token field")
	}
	return out.Token, nil
}

// dial fetches a token and opens the streaming WebSocket for cfg.
func (p *Provider) dial(ctx context.Context, cfg stt.Config) (*websocket.Conn, error) {
	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}

	wsURL, err := p.buildWSURL(cfg, token)
	if err != nil {
		return nil, fmt.Errorf("build ws url: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (p *Provider) buildWSURL(cfg stt.Config, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(p.wsBaseURL, "/") + "/v3/ws")
	if err != nil {
		return "", err
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	minSilence := cfg.MinEndOfTurnSilenceMS
	if minSilence == 0 {
		minSilence = 400
	}
	maxSilence := cfg.MaxTurnSilenceMS
	if maxSilence == 0 {
		maxSilence = 1200
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("speech_model", cfg.SpeechModel)
	q.Set("token", token)
	q.Set("format_turns", "true")
	q.Set("min_end_of_turn_silence_when_confident", strconv.Itoa(minSilence))
	q.Set("max_turn_silence", strconv.Itoa(maxSilence))
	if cfg.Prompt != "" {
		q.Set("prompt", cfg.Prompt)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- handle ----

// wireMessage peeks the JSON "type" discriminator shared by both message
// kinds the upstream sends.
type wireMessage struct {
	Type string `json:"type"`
}

type wireTranscript struct {
	Text      string `json:"text"`
	EndOfTurn bool   `json:"end_of_turn"`
}

type wireTurn struct {
	Transcript      string `json:"transcript"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
}

// handle implements stt.Handle. conn is stored atomically so a background
// refresh can swap it without a lock held across blocking I/O.
type handle struct {
	provider *Provider
	cfg      stt.Config
	sink     stt.EventSink

	conn      atomic.Pointer[websocket.Conn]
	refreshMu sync.Mutex
	timer     *time.Timer

	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Send implements stt.Handle.
func (h *handle) Send(audio []byte) {
	if h.closed.Load() {
		return
	}
	conn := h.conn.Load()
	if conn == nil {
		return
	}
	_ = conn.Write(context.Background(), websocket.MessageBinary, audio)
}

// Clear implements stt.Handle.
func (h *handle) Clear() {
	if h.closed.Load() {
		return
	}
	conn := h.conn.Load()
	if conn == nil {
		return
	}
	_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"ForceEndpoint"}`))
}

// Close implements stt.Handle.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.refreshMu.Lock()
		if h.timer != nil {
			h.timer.Stop()
		}
		h.refreshMu.Unlock()
		if conn := h.conn.Load(); conn != nil {
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}
		h.wg.Wait()
	})
	return nil
}

// scheduleRefresh arms a timer at refreshFraction of the token's lifetime.
func (h *handle) scheduleRefresh() {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()
	if h.closed.Load() {
		return
	}
	d := time.Duration(float64(h.provider.tokenTTL) * refreshFraction)
	h.timer = time.AfterFunc(d, h.refresh)
}

// refresh opens a new connection with a new token, atomically swaps it in,
// then closes the old one (spec §4.2: "the application-level handle is
// stable across refreshes").
func (h *handle) refresh() {
	if h.closed.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.provider.connectTimeout)
	defer cancel()

	newConn, err := h.provider.dial(ctx, h.cfg)
	if err != nil {
		h.sink.OnError(fmt.Errorf("assemblyai: token refresh: %w", err))
		h.scheduleRefresh()
		return
	}

	old := h.conn.Swap(newConn)
	h.wg.Add(1)
	go h.readLoop(newConn)

	if old != nil {
		old.Close(websocket.StatusNormalClosure, "refreshing token")
	}

	h.scheduleRefresh()
}

// readLoop dispatches incoming JSON frames to the sink until conn closes.
// Binary frames and unrecognised JSON shapes are ignored per spec §4.2.
func (h *handle) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	for {
		typ, msg, err := conn.Read(context.Background())
		if err != nil {
			if h.closed.Load() || h.conn.Load() != conn {
				// Expected: either we tore this connection down ourselves,
				// or it was superseded by a token refresh.
				return
			}
			code := websocket.CloseStatus(err)
			if code != websocket.StatusNormalClosure {
				h.sink.OnError(fmt.Errorf("assemblyai: connection closed abnormally: %w", err))
			}
			h.sink.OnClose(int(code), err.Error())
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.dispatch(msg)
	}
}

func (h *handle) dispatch(raw []byte) {
	var header wireMessage
	if err := json.Unmarshal(raw, &header); err != nil {
		return
	}

	switch header.Type {
	case "Transcript":
		var m wireTranscript
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		h.sink.OnTranscript(m.Text, m.EndOfTurn)
	case "Turn":
		var m wireTurn
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		text := strings.TrimSpace(m.Transcript)
		if text == "" {
			return
		}
		if m.TurnIsFormatted {
			h.sink.OnTurn(text)
		} else {
			h.sink.OnTranscript(text, false)
		}
	default:
		// Unrecognised message shape; ignored.
	}
}

var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Handle   = (*handle)(nil)
)
