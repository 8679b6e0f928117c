package itsf

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/foosdb/rankingsd/internal/rankings"
)

// PageSize is how many placements the site renders per ranking page.
const PageSize = 50

var categoryTokens = map[rankings.RankingCategory]string{
	rankings.RankingOpen:   "O",
	rankings.RankingWomen:  "W",
	rankings.RankingSenior: "S",
	rankings.RankingJunior: "J",
}

var classTokens = map[rankings.RankingClass]string{
	rankings.ClassSingles:  "S",
	rankings.ClassDoubles:  "D",
	rankings.ClassCombined: "C",
}

// RankingURL returns the address of one ranking list page. Pages are
// numbered from 1 and hold PageSize placements each.
func RankingURL(year int, category rankings.RankingCategory, class rankings.RankingClass, page int) string {
	return fmt.Sprintf("%s/classement&saison=%d&categ=%s&serie=%s&page=%d",
		baseURL, year, categoryTokens[category], classTokens[class], page)
}

// ParseRankingPage extracts the ordered (place, license) pairs from one
// ranking list page. An empty slice means the page exists but carries no
// rows, which ends pagination for the unit.
func ParseRankingPage(body []byte) ([]rankings.RankingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ranking page: %w", err)
	}

	content := divsWithClass(doc, "contenu_classement")
	if len(content) == 0 {
		return nil, fmt.Errorf("can't find div contenu_classement")
	}

	var entries []rankings.RankingEntry
	var rowErr error
	content[0].Find("div").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		class, _ := row.Attr("class")
		if class != "ligne_classement" && class != "ligne_classement even" {
			return true
		}
		entry, err := parseRankingRow(row)
		if err != nil {
			rowErr = err
			return false
		}
		entries = append(entries, entry)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return entries, nil
}

func parseRankingRow(row *goquery.Selection) (rankings.RankingEntry, error) {
	placeText := strings.TrimSuffix(strings.TrimSpace(row.Find("span.rang").First().Text()), ".")
	if placeText == "" {
		return rankings.RankingEntry{}, fmt.Errorf("can't find span.rang in ranking row")
	}
	place, err := strconv.Atoi(placeText)
	if err != nil {
		return rankings.RankingEntry{}, fmt.Errorf("invalid place %q in ranking row", placeText)
	}

	href, ok := row.Find(`a[href*="numlic="]`).First().Attr("href")
	if !ok {
		return rankings.RankingEntry{}, fmt.Errorf("can't find player link in ranking row for place %d", place)
	}
	playerID, err := licenseFromHref(href)
	if err != nil {
		return rankings.RankingEntry{}, fmt.Errorf("ranking row for place %d: %w", place, err)
	}
	return rankings.RankingEntry{Place: place, PlayerID: playerID}, nil
}

func licenseFromHref(href string) (int, error) {
	// Profile links look like ".../page/player&numlic=12345"; the site abuses
	// '&' inside the path, so parse the parameter by hand.
	idx := strings.LastIndex(href, "numlic=")
	if idx < 0 {
		return 0, fmt.Errorf("no license number in href %q", href)
	}
	raw := href[idx+len("numlic="):]
	if amp := strings.IndexAny(raw, "&?"); amp >= 0 {
		raw = raw[:amp]
	}
	raw, _ = url.QueryUnescape(raw)
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid license number in href %q", href)
	}
	return id, nil
}
