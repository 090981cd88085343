package scraper

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"car_scrooper/config"
	"car_scrooper/identity"
	"car_scrooper/models"
)

var (
	mileageRe = regexp.MustCompile(`(?i)([\d,. ]+)\s*km`)
	yearRe    = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// parseSearchPage extracts listing cards from a rendered search-results
// page. Year and mileage are best-effort: the site mixes them into free-text
// feature chips, and a missing value stays nil rather than zero.
func parseSearchPage(r io.Reader, filter *config.FilterConfig) ([]models.RawCar, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var cars []models.RawCar
	doc.Find("div.advert.js-item-listing").Each(func(_ int, ad *goquery.Selection) {
		car, ok := parseAdCard(ad)
		if !ok {
			return
		}
		car.Price = strings.Join(strings.Fields(car.Price), " ")
		// The brand comes from the filter, not the page: every card on a
		// filter's results belongs to that filter's brand.
		car.Brand = filter.Brand
		if !passesFilter(&car, filter) {
			return
		}
		cars = append(cars, car)
	})

	return cars, nil
}

func parseAdCard(ad *goquery.Selection) (models.RawCar, bool) {
	titleTag := ad.Find("a.advert__content-title").First()
	if titleTag.Length() == 0 {
		return models.RawCar{}, false
	}

	href, _ := titleTag.Attr("href")
	link := identity.CanonicalLink(href)
	if link == "" {
		return models.RawCar{}, false
	}

	car := models.RawCar{
		Title: strings.TrimSpace(titleTag.Text()),
		Link:  link,
		Price: strings.TrimSpace(ad.Find("a.advert__content-price").First().Text()),
	}

	var features []string
	ad.Find("div.advert__content-features div.advert__content-feature").Each(func(_ int, f *goquery.Selection) {
		text := strings.TrimSpace(f.Text())
		if text == "" {
			return
		}
		features = append(features, text)

		if car.Mileage == nil {
			if km, ok := extractMileage(text); ok {
				car.Mileage = &km
			}
		}
		if car.Year == nil {
			if year, ok := extractYear(text); ok {
				car.Year = &year
			}
		}
	})
	car.Features = strings.Join(features, " | ")

	// Fall back to the title for the year; sellers put it there often.
	if car.Year == nil {
		if year, ok := extractYear(car.Title); ok {
			car.Year = &year
		}
	}

	hint := ad.Find("div.advert__content-hint").First()
	car.DatePosted = strings.TrimSpace(hint.Find("div.advert__content-date").First().Text())
	car.Place = strings.TrimSpace(hint.Find("div.advert__content-place").First().Text())

	return car, true
}

// passesFilter applies the filter's year/mileage constraints. Records with
// an unknown year or mileage pass; only a value that provably violates the
// constraint rejects the card. Relaxed filters skip the constraints.
func passesFilter(car *models.RawCar, filter *config.FilterConfig) bool {
	if filter.Relaxed {
		return true
	}
	if car.Year != nil && filter.MinYear > 0 && *car.Year < filter.MinYear {
		return false
	}
	if car.Mileage != nil && filter.MaxMileage > 0 && *car.Mileage > filter.MaxMileage {
		return false
	}
	return true
}

func extractMileage(text string) (int, bool) {
	m := mileageRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := strings.NewReplacer(",", "", ".", "", " ", "").Replace(m[1])
	km, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return km, true
}

func extractYear(text string) (int, bool) {
	m := yearRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// parseAdPage extracts the current state of a single ad page. The caller
// checks isGonePage first; here missing elements simply yield empty fields.
func parseAdPage(r io.Reader) (*models.CarSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse ad page: %w", err)
	}

	snapshot := &models.CarSnapshot{
		Title:       strings.TrimSpace(doc.Find("h1.announcement__title").First().Text()),
		Price:       strings.Join(strings.Fields(doc.Find(".announcement-price__cost").First().Text()), " "),
		Description: strings.TrimSpace(doc.Find(".announcement-description .js-description").First().Text()),
	}

	return snapshot, nil
}

// isGonePage recognizes the site's soft not-found page, served with a 200
// when an ad was deleted.
func isGonePage(doc *goquery.Document) bool {
	if doc.Find(".page-404, .error-404").Length() > 0 {
		return true
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "page not found") || strings.Contains(title, "404")
}
