// Package dtfb parses season ranking pages from the national federation
// site. Like the itsf package, parsers are pure functions over fetched
// markup; player records themselves only exist on the international site,
// so national rankings reference players by their ITSF license.
package dtfb

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/foosdb/rankingsd/internal/rankings"
)

const baseURL = "https://dtfb.de/index.php/rangliste"

// PageSize is how many placements the site renders per ranking page.
const PageSize = 100

var categoryTokens = map[rankings.RankingCategory]string{
	rankings.RankingOpen:   "herren",
	rankings.RankingWomen:  "damen",
	rankings.RankingSenior: "senioren",
	rankings.RankingJunior: "junioren",
}

var classTokens = map[rankings.RankingClass]string{
	rankings.ClassSingles:  "einzel",
	rankings.ClassDoubles:  "doppel",
	rankings.ClassCombined: "kombiniert",
}

// RankingURL returns the address of one season ranking page, numbered from 1.
func RankingURL(season int, category rankings.RankingCategory, class rankings.RankingClass, page int) string {
	return fmt.Sprintf("%s?saison=%d&kategorie=%s&wertung=%s&seite=%d",
		baseURL, season, categoryTokens[category], classTokens[class], page)
}

// ParseRankingPage extracts the ordered (place, license) pairs from one
// season ranking page. The structural marker is the table with class
// "rangliste"; each body row holds the place in its first cell and a player
// link carrying the license number.
func ParseRankingPage(body []byte) ([]rankings.RankingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ranking page: %w", err)
	}

	table := doc.Find("table.rangliste").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("can't find table.rangliste")
	}

	var entries []rankings.RankingEntry
	var rowErr error
	table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		entry, err := parseRow(row)
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

func parseRow(row *goquery.Selection) (rankings.RankingEntry, error) {
	placeText := strings.TrimSuffix(strings.TrimSpace(row.Find("td").First().Text()), ".")
	place, err := strconv.Atoi(placeText)
	if err != nil {
		return rankings.RankingEntry{}, fmt.Errorf("invalid place %q in rangliste row", placeText)
	}

	href, ok := row.Find(`a[href*="lizenz="]`).First().Attr("href")
	if !ok {
		return rankings.RankingEntry{}, fmt.Errorf("can't find player link in rangliste row for place %d", place)
	}
	idx := strings.LastIndex(href, "lizenz=")
	raw := href[idx+len("lizenz="):]
	if amp := strings.IndexAny(raw, "&?"); amp >= 0 {
		raw = raw[:amp]
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return rankings.RankingEntry{}, fmt.Errorf("invalid license number in href %q", href)
	}
	return rankings.RankingEntry{Place: place, PlayerID: id}, nil
}
