package notify

import (
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
)

// Telegram sends monitoring alerts through the Bot API. With no token or
// chat configured it degrades to log-only so the engines keep running.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func NewTelegram(cfg *config.TelegramConfig, client *http.Client) *Telegram {
	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  "https://api.telegram.org",
		client:   client,
	}
}

func (t *Telegram) enabled() bool {
	return t.botToken != "" && t.chatID != ""
}

func (t *Telegram) send(text string) error {
	if !t.enabled() {
		log.Printf("Telegram disabled, would send: %s", firstLine(text))
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	form := url.Values{
		"chat_id":                  {t.chatID},
		"text":                     {text},
		"parse_mode":               {"HTML"},
		"disable_web_page_preview": {"false"},
	}

	resp, err := t.client.PostForm(endpoint, form)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram error %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// NewCar announces a freshly ingested listing. Priority filters get a
// louder header so they stand out in the chat.
func (t *Telegram) NewCar(car *models.Car, priority bool) error {
	header := "🚗 New listing"
	if priority {
		header = "🔥 PRIORITY: new listing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", header, html.EscapeString(car.FilterName))
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(car.Title))
	fmt.Fprintf(&b, "💰 %s\n", html.EscapeString(car.Price.Display()))
	if car.Year != nil {
		fmt.Fprintf(&b, "📅 %d", *car.Year)
		if car.Mileage != nil {
			fmt.Fprintf(&b, "  |  %d km", *car.Mileage)
		}
		b.WriteString("\n")
	} else if car.Mileage != nil {
		fmt.Fprintf(&b, "🛣 %d km\n", *car.Mileage)
	}
	if car.Place != "" {
		fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(car.Place))
	}
	b.WriteString(car.Link)

	return t.send(b.String())
}

// CarChanged reports what the change-detection pass found on one listing.
func (t *Telegram) CarChanged(car *models.Car, changes *models.ChangeSet) error {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 Listing updated\n<b>%s</b>\n", html.EscapeString(car.Title))

	if changes.PriceChanged {
		arrow := "➡️"
		if drop, ok := models.DropBetween(models.NewPrice(changes.OldPrice), models.NewPrice(changes.NewPrice)); ok && drop > 0 {
			arrow = "📉"
		}
		fmt.Fprintf(&b, "%s Price: %s → %s\n", arrow,
			html.EscapeString(changes.OldPrice), html.EscapeString(changes.NewPrice))
	}
	if changes.DescriptionChanged {
		b.WriteString("📝 Description updated\n")
	}
	b.WriteString(car.Link)

	return t.send(b.String())
}

// CarUnavailable reports a listing that disappeared from the site.
func (t *Telegram) CarUnavailable(car *models.Car) error {
	text := fmt.Sprintf("❌ Listing gone\n<b>%s</b>\n%s\n%s",
		html.EscapeString(car.Title), html.EscapeString(car.Price.Display()), car.Link)
	return t.send(text)
}

// CheckSummary sends one digest per change-detection pass.
func (t *Telegram) CheckSummary(summary *models.CheckSummary) error {
	if summary.Checked == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Check run complete (%.0fs)\n", summary.Elapsed().Seconds())
	fmt.Fprintf(&b, "Checked: %d\n", summary.Checked)
	fmt.Fprintf(&b, "Price changes: %d\n", summary.PriceChanges)
	fmt.Fprintf(&b, "Description changes: %d\n", summary.DescriptionChanges)
	fmt.Fprintf(&b, "Gone: %d\n", summary.Unavailable)
	if summary.Errors > 0 {
		fmt.Fprintf(&b, "Errors: %d (will retry next pass)\n", summary.Errors)
	}

	return t.send(b.String())
}

// DailyChanges sends the scheduled daily digest.
func (t *Telegram) DailyChanges(summary *models.ChangesSummary) error {
	text := fmt.Sprintf(
		"📊 Daily digest (last %d day(s))\nPrice changes: %d\nDescription changes: %d\nGone: %d",
		summary.Days, summary.PriceChanges, summary.DescriptionChanges, summary.Unavailable)
	return t.send(text)
}

// PriceDrops sends the weekly significant-drops alert.
func (t *Telegram) PriceDrops(drops []models.PriceDrop, lookback time.Duration) error {
	days := int(lookback.Hours() / 24)
	if len(drops) == 0 {
		return t.send(fmt.Sprintf("📉 No significant price drops in the last %d days.", days))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📉 Significant price drops, last %d days:\n\n", days)
	for _, d := range drops {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(d.Car.Title))
		prev := ""
		if d.Car.PreviousPrice != nil {
			prev = *d.Car.PreviousPrice
		}
		fmt.Fprintf(&b, "%s → %s (−€%d, %.1f%%)\n%s\n\n",
			html.EscapeString(prev), html.EscapeString(d.Car.Price.Display()),
			d.DropEuros, d.DropPct, d.Car.Link)
	}

	return t.send(b.String())
}

// PrioritySummary aggregates the priority-filter subset of an ingestion
// pass, sent before the regular filters are processed. Skipped when the
// subset found nothing.
func (t *Telegram) PrioritySummary(newByFilter map[string]int) error {
	total := sumCounts(newByFilter)
	if total == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 Priority filters: %d new listing(s)\n", total)
	writeFilterLines(&b, newByFilter)

	return t.send(b.String())
}

// MonitorSummary aggregates a full ingestion pass. Sent only when the pass
// found something new so the chat is not flooded with empty reports.
func (t *Telegram) MonitorSummary(newByFilter map[string]int) error {
	total := sumCounts(newByFilter)
	if total == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🆕 Monitor pass: %d new listing(s)\n", total)
	writeFilterLines(&b, newByFilter)

	return t.send(b.String())
}

func sumCounts(newByFilter map[string]int) int {
	total := 0
	for _, n := range newByFilter {
		total += n
	}
	return total
}

// writeFilterLines emits one line per filter in name order so repeated
// summaries read the same way.
func writeFilterLines(b *strings.Builder, newByFilter map[string]int) {
	names := make([]string, 0, len(newByFilter))
	for name := range newByFilter {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if n := newByFilter[name]; n > 0 {
			fmt.Fprintf(b, "  %s: %d\n", html.EscapeString(name), n)
		}
	}
}
