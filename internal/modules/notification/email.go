// README: SMTP email channel rendered from an HTML template.
package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/gomail.v2"

	"rxflow/internal/modules/user"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>Hello {{.Name}},</p>
  <p>{{.Message}}</p>
  {{if .Priority}}<p style="font-size: 12px; color: #888;">Priority: {{.Priority}}</p>{{end}}
</body>
</html>`))

type emailView struct {
	Name     string
	Message  string
	Priority Priority
}

// mailDialer is the part of gomail.Dialer used here.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	cfg           SMTPConfig
	dialer        mailDialer
	fetch         *http.Client
	maxAttachment int64

	// attachments fetched during the current send cycle, keyed by URL
	fetches     singleflight.Group
	mu          sync.Mutex
	attachments map[string]cachedAttachment
	now         func() time.Time
}

type cachedAttachment struct {
	data      []byte
	fetchedAt time.Time
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &EmailSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fetch:  &http.Client{Timeout: cfg.Timeout},

		maxAttachment: maxAttachmentBytes,
		attachments:   make(map[string]cachedAttachment),
		now:           time.Now,
	}
}

func (s *EmailSender) Send(ctx context.Context, to user.Contact, n *Notification) error {
	if to.Email == "" {
		return fmt.Errorf("recipient %s has no email address", to.ID)
	}
	m, err := s.compose(ctx, to, n)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (s *EmailSender) compose(ctx context.Context, to user.Contact, n *Notification) (*gomail.Message, error) {
	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, emailView{Name: to.Name, Message: n.Message, Priority: n.Priority}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetAddressHeader("To", to.Email, to.Name)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/html", body.String())

	if n.Media != nil && n.Media.URL != "" {
		data, err := s.attachment(ctx, n.Media.URL)
		if err != nil {
			return nil, err
		}
		name := n.Media.Filename
		if name == "" {
			name = "attachment"
		}
		settings := []gomail.FileSetting{gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})}
		if n.Media.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {n.Media.ContentType}}))
		}
		m.Attach(name, settings...)
	}
	return m, nil
}

// maxAttachmentBytes caps downloaded attachments.
const maxAttachmentBytes = 10 << 20

// attachmentTTL bounds how long a fetched attachment is reused across the
// recipients of one dispatch.
const attachmentTTL = time.Minute

var errAttachmentTooLarge = errors.New("attachment too large")

// attachment returns the media body, fetching it at most once per URL within
// attachmentTTL. Concurrent recipients share one download.
func (s *EmailSender) attachment(ctx context.Context, url string) ([]byte, error) {
	now := s.now()
	s.mu.Lock()
	if c, ok := s.attachments[url]; ok && now.Sub(c.fetchedAt) < attachmentTTL {
		s.mu.Unlock()
		return c.data, nil
	}
	s.mu.Unlock()

	v, err, _ := s.fetches.Do(url, func() (interface{}, error) {
		data, err := s.download(ctx, url)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for k, c := range s.attachments {
			if now.Sub(c.fetchedAt) >= attachmentTTL {
				delete(s.attachments, k)
			}
		}
		s.attachments[url] = cachedAttachment{data: data, fetchedAt: now}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *EmailSender) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxAttachment+1))
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	if int64(len(data)) > s.maxAttachment {
		return nil, fmt.Errorf("%w: over %d bytes", errAttachmentTooLarge, s.maxAttachment)
	}
	return data, nil
}
