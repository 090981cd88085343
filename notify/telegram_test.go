package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
)

func testTelegram(t *testing.T, handler http.HandlerFunc) (*Telegram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tg := NewTelegram(&config.TelegramConfig{BotToken: "test-token", ChatID: "42"}, srv.Client())
	tg.apiBase = srv.URL
	return tg, srv
}

func TestNewCarMessage(t *testing.T) {
	var gotPath, gotText, gotChat string
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		r.ParseForm()
		gotText = r.FormValue("text")
		gotChat = r.FormValue("chat_id")
		w.Write([]byte(`{"ok":true}`))
	})

	year := 2018
	car := &models.Car{
		Title:      "BMW 320d <2018>",
		Link:       "https://www.bazaraki.com/adv/4567890_bmw/",
		Price:      models.NewPrice("€18,500"),
		Year:       &year,
		Place:      "Limassol",
		FilterName: "bmw",
	}

	if err := tg.NewCar(car, true); err != nil {
		t.Fatalf("NewCar failed: %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotChat != "42" {
		t.Errorf("unexpected chat_id: %s", gotChat)
	}
	if !strings.Contains(gotText, "PRIORITY") {
		t.Errorf("priority header missing: %q", gotText)
	}
	if !strings.Contains(gotText, "BMW 320d &lt;2018&gt;") {
		t.Errorf("title not HTML-escaped: %q", gotText)
	}
	if !strings.Contains(gotText, "€18,500") || !strings.Contains(gotText, car.Link) {
		t.Errorf("message missing price or link: %q", gotText)
	}
}

func TestCarChangedShowsOldAndNewPrice(t *testing.T) {
	var gotText string
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotText = r.FormValue("text")
		w.Write([]byte(`{"ok":true}`))
	})

	car := &models.Car{Title: "Audi A4", Link: "https://www.bazaraki.com/adv/1_audi/"}
	changes := &models.ChangeSet{
		PriceChanged: true,
		OldPrice:     "€12,500",
		NewPrice:     "€11,000",
	}

	if err := tg.CarChanged(car, changes); err != nil {
		t.Fatalf("CarChanged failed: %v", err)
	}
	if !strings.Contains(gotText, "€12,500 → €11,000") {
		t.Errorf("price transition missing: %q", gotText)
	}
	if !strings.Contains(gotText, "📉") {
		t.Errorf("drop arrow missing for a price decrease: %q", gotText)
	}
}

func TestCheckSummarySkipsEmptyRun(t *testing.T) {
	called := false
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"ok":true}`))
	})

	summary := &models.CheckSummary{StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := tg.CheckSummary(summary); err != nil {
		t.Fatalf("CheckSummary failed: %v", err)
	}
	if called {
		t.Error("empty run should not send a message")
	}
}

func TestPrioritySummarySkipsEmptySubset(t *testing.T) {
	called := false
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"ok":true}`))
	})

	if err := tg.PrioritySummary(map[string]int{"bmw": 0}); err != nil {
		t.Fatalf("PrioritySummary failed: %v", err)
	}
	if called {
		t.Error("priority subset with no new listings should not send a message")
	}
}

func TestMonitorSummaryOrdersFiltersByName(t *testing.T) {
	var gotText string
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotText = r.FormValue("text")
		w.Write([]byte(`{"ok":true}`))
	})

	err := tg.MonitorSummary(map[string]int{"mercedes": 2, "audi": 1, "bmw": 3})
	if err != nil {
		t.Fatalf("MonitorSummary failed: %v", err)
	}

	if !strings.Contains(gotText, "6 new listing(s)") {
		t.Errorf("total missing: %q", gotText)
	}
	audi := strings.Index(gotText, "audi")
	bmw := strings.Index(gotText, "bmw")
	mercedes := strings.Index(gotText, "mercedes")
	if audi < 0 || bmw < 0 || mercedes < 0 || !(audi < bmw && bmw < mercedes) {
		t.Errorf("filter lines not in name order: %q", gotText)
	}
}

func TestSendReportsAPIError(t *testing.T) {
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Bad Request"}`, http.StatusBadRequest)
	})

	err := tg.send("hello")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDisabledTelegramIsNoOp(t *testing.T) {
	tg := NewTelegram(&config.TelegramConfig{}, http.DefaultClient)
	if err := tg.send("anything"); err != nil {
		t.Fatalf("disabled notifier should not error: %v", err)
	}
}
