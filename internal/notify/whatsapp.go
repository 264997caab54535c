package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WhatsAppConfig configures the Cloud API sender.
type WhatsAppConfig struct {
	APIURL     string // e.g. https://graph.facebook.com/v18.0
	Token      string
	PhoneID    string
	Recipients []string

	// MessagesPerSecond throttles sends across recipients (default: 5).
	MessagesPerSecond float64
	Timeout           time.Duration // default: 15s
}

// WhatsAppNotifier sends digests through the WhatsApp Cloud API.
type WhatsAppNotifier struct {
	cfg     WhatsAppConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWhatsAppNotifier validates cfg and returns a notifier.
func NewWhatsAppNotifier(cfg WhatsAppConfig, logger *zap.Logger) (*WhatsAppNotifier, error) {
	if cfg.Token == "" || cfg.PhoneID == "" {
		return nil, errors.New("whatsapp: token and phone id are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://graph.facebook.com/v18.0"
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), 1),
		logger:  logger,
	}, nil
}

type whatsAppMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Notify sends the formatted digest to every recipient. A failed recipient
// does not stop the others; the joined errors are returned.
func (n *WhatsAppNotifier) Notify(ctx context.Context, digest Digest) error {
	body := FormatDigest(digest)
	var errs []error
	sent := 0
	for _, r := range n.cfg.Recipients {
		if err := n.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if err := n.send(ctx, NormalizePhone(r), body); err != nil {
			errs = append(errs, fmt.Errorf("whatsapp %s: %w", r, err))
			continue
		}
		sent++
	}
	n.logger.Info("notify: whatsapp digest sent",
		zap.Int("sent", sent),
		zap.Int("failed", len(n.cfg.Recipients)-sent))
	return errors.Join(errs...)
}

func (n *WhatsAppNotifier) send(ctx context.Context, to, body string) error {
	msg := whatsAppMessage{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: "text"}
	msg.Text.Body = body
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	url := strings.TrimRight(n.cfg.APIURL, "/") + "/" + n.cfg.PhoneID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// NormalizePhone keeps digits only and prefixes 10-digit numbers with the
// North American country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 && !strings.HasPrefix(digits, "1") {
		return "1" + digits
	}
	return digits
}
