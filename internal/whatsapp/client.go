package whatsapp

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
	"time"

	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

const (
	defaultScheduleBaseURL  = "https://wa.iconicsolution.co.in"
	defaultImmediateBaseURL = "http://ow.ewiths.com"
	defaultUserAgent        = "consultation-reminders/1.0"

	sendPath   = "/wapp/api/v2/send/bytemplate"
	cancelPath = "/wapp/api/cancel/campaign"
)

// Config controls how the campaign client behaves.
type Config struct {
	ScheduleBaseURL  string
	ImmediateBaseURL string
	APIKey           string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Logger           *logging.Logger
	UserAgent        string
}

// Client talks to the WhatsApp campaign platform. Every call is a GET
// authenticated by an apikey query parameter and is attempted once.
type Client struct {
	apiKey       string
	scheduleBase string
	immediate    string
	httpClient   *http.Client
	timeout      time.Duration
	logger       *logging.Logger
	userAgent    string
}

// ScheduleRequest describes one timed template send.
type ScheduleRequest struct {
	Template  string
	Mobile    string
	SendAt    time.Time
	Variables []string
}

// TemplateMessage is an immediate template send.
type TemplateMessage struct {
	Template  string
	Mobile    string
	Variables []string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("whatsapp: API key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:       cfg.APIKey,
		scheduleBase: normalizeBase(cfg.ScheduleBaseURL, defaultScheduleBaseURL),
		immediate:    normalizeBase(cfg.ImmediateBaseURL, defaultImmediateBaseURL),
		httpClient:   httpClient,
		timeout:      timeout,
		logger:       logger,
		userAgent:    userAgent,
	}, nil
}

// Schedule queues a template send for req.SendAt and returns the platform's job id.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (string, error) {
	if err := validateRecipient(req.Template, req.Mobile); err != nil {
		return "", err
	}
	if req.SendAt.IsZero() {
		return "", errors.New("whatsapp: send time required")
	}
	q := url.Values{}
	q.Set("templatename", req.Template)
	q.Set("mobile", req.Mobile)
	q.Set("scheduledate", strconv.FormatInt(req.SendAt.Unix(), 10))
	q.Set("dvariables", joinVariables(req.Variables))

	data, err := c.invoke(ctx, c.scheduleBase, sendPath, q)
	if err != nil {
		return "", err
	}
	return decodeRequestID(data)
}

// Cancel withdraws a previously scheduled job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("whatsapp: job id required")
	}
	q := url.Values{}
	q.Set("campid", jobID)
	data, err := c.invoke(ctx, c.scheduleBase, cancelPath, q)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) > 0 && !json.Valid(data) {
		return fmt.Errorf("whatsapp: malformed cancel response for %s", jobID)
	}
	return nil
}

// SendTemplate sends a template message right away.
func (c *Client) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	if err := validateRecipient(msg.Template, msg.Mobile); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("templatename", msg.Template)
	q.Set("mobile", msg.Mobile)
	q.Set("dvariables", joinVariables(msg.Variables))
	_, err := c.invoke(ctx, c.immediate, sendPath, q)
	return err
}

func (c *Client) invoke(ctx context.Context, base, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("whatsapp platform returned error status", "path", path, "status", resp.StatusCode)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// APIError reports a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("whatsapp: http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

func decodeRequestID(data []byte) (string, error) {
	var parsed struct {
		RequestID json.RawMessage `json:"requestid"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("whatsapp: decode schedule response: %w", err)
	}
	raw := strings.TrimSpace(string(parsed.RequestID))
	if raw == "" || raw == "null" {
		return "", errors.New("whatsapp: schedule response missing requestid")
	}
	var id string
	if err := json.Unmarshal(parsed.RequestID, &id); err == nil {
		if strings.TrimSpace(id) == "" {
			return "", errors.New("whatsapp: schedule response has empty requestid")
		}
		return id, nil
	}
	var num json.Number
	if err := json.Unmarshal(parsed.RequestID, &num); err != nil {
		return "", fmt.Errorf("whatsapp: unexpected requestid %s", raw)
	}
	return num.String(), nil
}

// joinVariables builds the comma separated dvariables list. Commas inside a
// value would shift every following variable, so they are replaced.
func joinVariables(vars []string) string {
	cleaned := make([]string, len(vars))
	for i, v := range vars {
		cleaned[i] = strings.TrimSpace(strings.ReplaceAll(v, ",", " "))
	}
	return strings.Join(cleaned, ",")
}

func validateRecipient(template, mobile string) error {
	if strings.TrimSpace(template) == "" {
		return errors.New("whatsapp: template required")
	}
	if strings.TrimSpace(mobile) == "" {
		return errors.New("whatsapp: mobile required")
	}
	return nil
}

func normalizeBase(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	return strings.TrimRight(value, "/")
}
