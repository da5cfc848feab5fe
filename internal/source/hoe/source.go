// Package hoe reads the hourly outage schedule published on the regional
// utility's web page.
package hoe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"outagebot/internal/schedule"
	logx "outagebot/pkg/logx"
)

const (
	DefaultURL       = "https://hoe.com.ua/page/pogodinni-vidkljuchennja"
	DefaultUserAgent = "Mozilla/5.0"
	DefaultTimeout   = 15 * time.Second

	maxBody = 8 << 20
	// A page fetched for the fingerprint is reused for the schedule within
	// this window, so one cycle costs one request.
	reuseWindow = time.Minute
)

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

type Source struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastDoc   *goquery.Document
	fetchedAt time.Time
}

func New(cfg Config, log logx.Logger) *Source {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
	}
}

func (s *Source) FetchPageFingerprintInput(ctx context.Context) (string, error) {
	doc, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.lastDoc, s.fetchedAt = doc, s.now()
	s.mu.Unlock()
	return relevantText(doc), nil
}

func (s *Source) FetchRawSchedule(ctx context.Context) ([]schedule.DaySchedule, error) {
	s.mu.Lock()
	doc := s.lastDoc
	fresh := doc != nil && s.now().Sub(s.fetchedAt) < reuseWindow
	s.lastDoc = nil
	s.mu.Unlock()

	if !fresh {
		var err error
		if doc, err = s.fetch(ctx); err != nil {
			return nil, err
		}
	}
	days := parseSchedules(doc)
	if len(days) == 0 {
		s.log.Warn("no dated schedule blocks found on page", logx.String("url", s.cfg.URL))
	}
	return days, nil
}

func (s *Source) fetch(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.9,en;q=0.7")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: unexpected status %s", s.cfg.URL, resp.Status)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
