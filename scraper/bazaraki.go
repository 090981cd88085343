package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"car_scrooper/config"
	"car_scrooper/models"
)

const (
	maxSearchPages = 5
	minPageDelay   = 2 * time.Second
	maxPageDelay   = 5 * time.Second
)

// BazarakiSource drives a real browser against bazaraki.com. The site sits
// behind Cloudflare, so plain HTTP fetches get challenged; a persistent
// browser profile keeps the clearance cookie between runs.
type BazarakiSource struct {
	cfg         *config.ChangesConfig
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	mu          sync.Mutex
	initialized bool
}

func NewBazarakiSource(cfg *config.ChangesConfig) *BazarakiSource {
	return &BazarakiSource{cfg: cfg}
}

func (s *BazarakiSource) ensureBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	var err error
	s.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	cwd, _ := os.Getwd()
	userDataDir := filepath.Join(cwd, "browser_data")
	s.context, err = s.pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.initialized = true
	return nil
}

func (s *BazarakiSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context != nil {
		s.context.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
	s.initialized = false
}

// Scrape walks the filter's search pages and returns candidate listings.
// Listings already in knownLinks keep their search-card data only; new
// listings get a per-ad visit to pick up the full description.
func (s *BazarakiSource) Scrape(ctx context.Context, filter *config.FilterConfig, knownLinks map[string]bool) ([]models.RawCar, error) {
	if err := s.ensureBrowser(); err != nil {
		return nil, err
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	var all []models.RawCar
	for pageNum := 1; pageNum <= maxSearchPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		pageURL := filter.URL
		if pageNum > 1 {
			pageURL = pageURL + "?page=" + fmt.Sprint(pageNum)
		}

		html, err := s.loadPage(page, pageURL)
		if err != nil {
			return all, fmt.Errorf("filter %s page %d: %w", filter.Name, pageNum, err)
		}

		cars, err := parseSearchPage(strings.NewReader(html), filter)
		if err != nil {
			return all, err
		}
		if len(cars) == 0 {
			break
		}

		all = append(all, cars...)
		log.Printf("[%s] page %d: %d listings (total %d)", filter.Name, pageNum, len(cars), len(all))

		humanDelay()
	}

	s.enrichNew(ctx, page, all, knownLinks)

	return all, nil
}

// enrichNew fetches descriptions for listings the store has not seen. Known
// listings are skipped, they go through the change-detection path instead.
func (s *BazarakiSource) enrichNew(ctx context.Context, page playwright.Page, cars []models.RawCar, knownLinks map[string]bool) {
	for i := range cars {
		if knownLinks[cars[i].Link] {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		snapshot, err := s.fetchAd(page, cars[i].Link)
		if err != nil {
			log.Printf("Enrichment failed for %s: %v", cars[i].Link, err)
			continue
		}
		if snapshot.Description != "" {
			desc := snapshot.Description
			cars[i].Description = &desc
		}

		humanDelay()
	}
}

func (s *BazarakiSource) Refetch(ctx context.Context, link string) (*models.CarSnapshot, error) {
	if err := s.ensureBrowser(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	return s.fetchAd(page, link)
}

func (s *BazarakiSource) fetchAd(page playwright.Page, link string) (*models.CarSnapshot, error) {
	html, err := s.loadPage(page, link)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse ad page: %w", err)
	}
	if isGonePage(doc) {
		return nil, ErrListingGone
	}

	return parseAdPage(strings.NewReader(html))
}

func (s *BazarakiSource) loadPage(page playwright.Page, pageURL string) (string, error) {
	timeout := float64(s.cfg.FetchTimeout.Milliseconds())

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	if resp != nil && resp.Status() == 404 {
		return "", ErrListingGone
	}

	// Cloudflare interstitials resolve within a few seconds when the
	// profile already holds clearance. Poll instead of a fixed sleep.
	for i := 0; i < 10; i++ {
		content, err := page.Content()
		if err != nil {
			return "", err
		}
		if !isChallengePage(content) {
			return content, nil
		}
		page.WaitForTimeout(1000)
	}

	return "", fmt.Errorf("challenge page did not clear for %s", pageURL)
}

func isChallengePage(content string) bool {
	return strings.Contains(content, "Just a moment...") ||
		strings.Contains(content, "cf-challenge") ||
		strings.Contains(content, "Checking your browser")
}

func humanDelay() {
	delay := minPageDelay + time.Duration(rand.Int63n(int64(maxPageDelay-minPageDelay)))
	time.Sleep(delay)
}
