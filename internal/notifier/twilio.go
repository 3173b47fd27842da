package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "jokeline/pkg/logx"
)

const DefaultBaseURL = "https://api.twilio.com"

type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

type TwilioSender struct {
	cfg      TwilioConfig
	endpoint string
	client   *http.Client
	log      logx.Logger
}

// NewTwilioSender returns ErrNotConfigured when credentials or the sender number are missing.
func NewTwilioSender(cfg TwilioConfig, client *http.Client, log logx.Logger) (*TwilioSender, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrNotConfigured
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &TwilioSender{
		cfg:      cfg,
		endpoint: fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(cfg.AccountSID)),
		client:   client,
		log:      log,
	}, nil
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (Receipt, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Receipt{}, err
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("send to provider: %w", err)
	}
	defer resp.Body.Close()

	var mr messageResponse
	decErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&mr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &ProviderError{Status: resp.StatusCode, Code: mr.Code, Message: mr.Message}
		if pe.Message == "" {
			pe.Message = http.StatusText(resp.StatusCode)
		}
		return Receipt{}, pe
	}
	if decErr != nil {
		return Receipt{}, fmt.Errorf("decode provider response: %w", decErr)
	}
	if mr.SID == "" {
		return Receipt{}, fmt.Errorf("provider response missing sid")
	}
	s.log.Debug("message accepted", logx.String("sid", mr.SID), logx.String("status", mr.Status))
	return Receipt{MessageID: mr.SID}, nil
}
