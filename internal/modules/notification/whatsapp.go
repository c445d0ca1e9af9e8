// README: WhatsApp Cloud API channel.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rxflow/internal/modules/user"
)

type WhatsAppConfig struct {
	APIURL        string
	PhoneNumberID string
	Token         string
	Timeout       time.Duration
}

type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsAppSender(cfg WhatsAppConfig) *WhatsAppSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WhatsAppSender{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type waMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             *waText  `json:"text,omitempty"`
	Image            *waMedia `json:"image,omitempty"`
	Document         *waMedia `json:"document,omitempty"`
}

func (s *WhatsAppSender) Send(ctx context.Context, to user.Contact, n *Notification) error {
	if to.Phone == "" {
		return fmt.Errorf("recipient %s has no phone number", to.ID)
	}
	body, err := json.Marshal(buildWhatsAppMessage(to.Phone, n))
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.cfg.APIURL, "/"), s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp api %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// buildWhatsAppMessage sends media with the message as caption, plain text otherwise.
func buildWhatsAppMessage(phone string, n *Notification) waMessage {
	msg := waMessage{MessagingProduct: "whatsapp", To: strings.TrimPrefix(phone, "+")}
	if n.Media == nil || n.Media.URL == "" {
		msg.Type = "text"
		msg.Text = &waText{Body: n.Message}
		return msg
	}
	media := &waMedia{Link: n.Media.URL, Caption: n.Message}
	if strings.HasPrefix(n.Media.ContentType, "image/") {
		msg.Type = "image"
		msg.Image = media
		return msg
	}
	media.Filename = n.Media.Filename
	msg.Type = "document"
	msg.Document = media
	return msg
}
