package views

import (
	"fmt"
	"strings"

	"cartui/db"
	"cartui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const carsPageSize = 25

type carsMsg struct {
	cars  []db.Car
	total int
}

type Cars struct {
	db            *db.Client
	width, height int
	cars          []db.Car
	total         int
	page          int
	selected      int
	availableOnly bool
}

func NewCars(dbClient *db.Client) Cars {
	return Cars{db: dbClient, availableOnly: true}
}

func (c Cars) Init() tea.Cmd {
	return c.Refresh()
}

func (c Cars) Refresh() tea.Cmd {
	return func() tea.Msg {
		cars, _ := c.db.GetCars(carsPageSize, c.page*carsPageSize, c.availableOnly)
		total, _ := c.db.GetCarCount(c.availableOnly)
		return carsMsg{cars, total}
	}
}

func (c Cars) SetSize(w, h int) Cars {
	c.width = w
	c.height = h
	return c
}

// GetSelectedURL returns the listing link under the cursor.
func (c Cars) GetSelectedURL() string {
	if c.selected >= 0 && c.selected < len(c.cars) {
		return c.cars[c.selected].Link
	}
	return ""
}

func (c Cars) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case carsMsg:
		c.cars = msg.cars
		c.total = msg.total
		if c.selected >= len(c.cars) {
			c.selected = len(c.cars) - 1
		}
		if c.selected < 0 {
			c.selected = 0
		}

	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if c.selected > 0 {
				c.selected--
			}
		case "down", "j":
			if c.selected < len(c.cars)-1 {
				c.selected++
			}
		case "left", "h":
			if c.page > 0 {
				c.page--
				c.selected = 0
				return c, c.Refresh()
			}
		case "right", "n":
			if (c.page+1)*carsPageSize < c.total {
				c.page++
				c.selected = 0
				return c, c.Refresh()
			}
		case "a":
			c.availableOnly = !c.availableOnly
			c.page = 0
			c.selected = 0
			return c, c.Refresh()
		case "g":
			c.selected = 0
		case "G":
			c.selected = len(c.cars) - 1
		}
	}
	return c, nil
}

func (c Cars) View() string {
	title := "Cars"
	if c.availableOnly {
		title = "Cars (available)"
	}

	table := c.renderTable()
	footer := c.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render(title),
		table,
		footer,
	)
}

func (c Cars) renderTable() string {
	if len(c.cars) == 0 {
		return styles.Muted.Render("No cars")
	}

	header := fmt.Sprintf("%-40s %-12s %5s %9s %-12s %-12s %6s",
		"Title", "Price", "Year", "Mileage", "Place", "Filter", "Δ")
	rows := []string{styles.TableHeader.Render(header)}

	for i, car := range c.cars {
		price := car.Price
		if car.PreviousPrice != nil {
			price = car.Price + " *"
		}

		year := "-"
		if car.Year > 0 {
			year = fmt.Sprintf("%d", car.Year)
		}
		mileage := "-"
		if car.Mileage > 0 {
			mileage = fmt.Sprintf("%d km", car.Mileage)
		}

		row := fmt.Sprintf("%-40s %-12s %5s %9s %-12s %-12s %6d",
			truncate(car.Title, 40),
			truncate(price, 12),
			year,
			mileage,
			truncate(car.Place, 12),
			truncate(car.FilterName, 12),
			car.PriceChanges,
		)

		if i == c.selected {
			rows = append(rows, styles.TableSelected.Render(row))
		} else if !car.Available {
			rows = append(rows, styles.Muted.Render(row))
		} else {
			rows = append(rows, styles.TableCell.Render(row))
		}
	}
	return strings.Join(rows, "\n")
}

func (c Cars) renderFooter() string {
	totalPages := (c.total + carsPageSize - 1) / carsPageSize
	if totalPages == 0 {
		totalPages = 1
	}

	parts := []string{
		fmt.Sprintf("Page %d/%d (%d cars)", c.page+1, totalPages, c.total),
		"←/→ page",
		"j/k select",
		"a toggle available",
	}

	selected := c.GetSelectedURL()
	if selected != "" {
		parts = append(parts, truncate(selected, c.width-60))
	}

	return styles.Muted.Render(strings.Join(parts, "  "))
}
