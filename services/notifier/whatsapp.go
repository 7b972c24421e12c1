package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signal_report_backend/models"
)

// WhatsAppSink sends text messages through the WhatsApp Business Cloud API
type WhatsAppSink struct {
	apiURL    string
	token     string
	recipient string
	client    *http.Client
}

type whatsAppText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type whatsAppRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewWhatsAppSink creates a sink posting to apiURL (the phone number's /messages endpoint)
func NewWhatsAppSink(apiURL, token, recipient string, client *http.Client) (*WhatsAppSink, error) {
	if apiURL == "" || token == "" || recipient == "" {
		return nil, fmt.Errorf("whatsapp: %w", ErrNotConfigured)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WhatsAppSink{apiURL: apiURL, token: token, recipient: recipient, client: client}, nil
}

func (s *WhatsAppSink) Name() string { return models.ChannelWhatsApp }

// Send posts one text message
func (s *WhatsAppSink) Send(ctx context.Context, text string) (Ack, error) {
	payload, err := json.Marshal(whatsAppRequest{
		MessagingProduct: "whatsapp",
		To:               s.recipient,
		Type:             "text",
		Text:             whatsAppText{Body: text},
	})
	if err != nil {
		return Ack{}, s.fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return Ack{}, s.fail(err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Ack{}, s.fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Ack{}, s.fail(err)
	}

	var parsed whatsAppResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return Ack{}, s.fail(fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Error.Message))
		}
		return Ack{}, s.fail(fmt.Errorf("status %d", resp.StatusCode))
	}
	if len(parsed.Messages) == 0 {
		return Ack{}, s.fail(fmt.Errorf("response carried no message id"))
	}

	return Ack{Reference: parsed.Messages[0].ID, At: time.Now().UTC()}, nil
}

func (s *WhatsAppSink) fail(err error) error {
	return &SendError{Channel: s.Name(), Err: err}
}
