package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type WebhookMessage struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Client struct {
	webhookURL string
	httpClient *http.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) SendMessage(msg WebhookMessage) error {
	if c.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) SendLogMessage(level, message string, fields map[string]interface{}) error {
	embed := Embed{
		Title:       fmt.Sprintf("mbtatracker %s", level),
		Description: message,
		Color:       getColorForLevel(level),
		Timestamp:   time.Now(),
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		embed.Fields = append(embed.Fields, Field{
			Name:   key,
			Value:  fmt.Sprintf("%v", fields[key]),
			Inline: key != zerolog.ErrorFieldName,
		})
	}

	return c.SendMessage(WebhookMessage{Embeds: []Embed{embed}})
}

// AlertWriter is a zerolog.LevelWriter that forwards lines at or above
// MinLevel to the webhook, with the line's fields as embed fields.
// Fatal lines are sent synchronously so they leave before the process exits.
type AlertWriter struct {
	Client   *Client
	MinLevel zerolog.Level
}

func NewAlertWriter(webhookURL string, minLevel zerolog.Level) *AlertWriter {
	return &AlertWriter{Client: NewClient(webhookURL), MinLevel: minLevel}
}

// Write drops lines without a level
func (w *AlertWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *AlertWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.MinLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return len(p), nil
	}

	// p is reused by zerolog once this returns, so decode before going async
	fields := make(map[string]interface{})
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}
	message, _ := fields[zerolog.MessageFieldName].(string)
	delete(fields, zerolog.MessageFieldName)
	delete(fields, zerolog.LevelFieldName)
	delete(fields, zerolog.TimestampFieldName)

	name := strings.ToUpper(level.String())
	if level >= zerolog.FatalLevel {
		_ = w.Client.SendLogMessage(name, message, fields)
		return len(p), nil
	}
	go func() {
		_ = w.Client.SendLogMessage(name, message, fields)
	}()
	return len(p), nil
}

func getColorForLevel(level string) int {
	switch level {
	case "ERROR":
		return 0xFF0000 // Red
	case "FATAL", "PANIC":
		return 0x8B0000 // Dark Red
	case "WARN":
		return 0xFFA500 // Orange
	default:
		return 0x808080 // Gray
	}
}
