// Package itsf parses pages from the international federation site.
//
// The site has no API; records are extracted from server-rendered markup by
// locating container divs with well-known class attributes. Parsers are pure
// functions over a fetched body and do no I/O.
package itsf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/foosdb/rankingsd/internal/rankings"
)

const baseURL = "https://www.tablesoccer.org/page"

// PlayerURL returns the profile page address for one license number.
func PlayerURL(itsfID int) string {
	return fmt.Sprintf("%s/player&numlic=%d", baseURL, itsfID)
}

// ParsePlayer extracts a player profile from a fetched profile page.
//
// Country code and category are identity fields: any structural mismatch is
// a hard failure for the whole record. Birth year is supplementary: a value
// that does not parse yields BirthYearUnknown plus a warning, and the record
// still succeeds. Returned warnings belong in the run log.
func ParsePlayer(body []byte, itsfID int) (rankings.Player, []string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rankings.Player{}, nil, fmt.Errorf("parse player page: %w", err)
	}

	nameDivs := divsWithClass(doc, "nomdujoueur")
	if len(nameDivs) == 0 {
		return rankings.Player{}, nil, fmt.Errorf("can't find div nomdujoueur")
	}
	nameDiv := nameDivs[0]
	name := ownText(nameDiv)
	if name == "" {
		return rankings.Player{}, nil, fmt.Errorf("can't find text in nomdujoueur div")
	}
	firstName, lastName := SplitName(name)

	countryCode, err := parseCountryCode(nameDiv)
	if err != nil {
		return rankings.Player{}, nil, err
	}

	infoDivs := divsWithClass(doc, "contenu_typeinfojoueur")
	if len(infoDivs) < 2 {
		return rankings.Player{}, nil, fmt.Errorf("invalid number of contenu_typeinfojoueur (%d)", len(infoDivs))
	}
	infoDivsEven := divsWithClass(doc, "contenu_typeinfojoueur even")
	if len(infoDivsEven) < 1 {
		return rankings.Player{}, nil, fmt.Errorf("invalid number of contenu_typeinfojoueur even (%d)", len(infoDivsEven))
	}

	categoryText := ownText(infoDivsEven[0])
	if categoryText == "" {
		return rankings.Player{}, nil, fmt.Errorf("can't find category text")
	}
	category, err := rankings.ParsePlayerCategory(categoryText)
	if err != nil {
		return rankings.Player{}, nil, err
	}

	var warnings []string
	birthYearText := ownText(infoDivs[1])
	if birthYearText == "" {
		return rankings.Player{}, nil, fmt.Errorf("can't find birth year")
	}
	birthYear, err := strconv.Atoi(birthYearText)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("player %d: can't parse birth year %q", itsfID, birthYearText))
		birthYear = rankings.BirthYearUnknown
	}

	return rankings.Player{
		ITSFID:      itsfID,
		FirstName:   firstName,
		LastName:    lastName,
		BirthYear:   birthYear,
		CountryCode: countryCode,
		Category:    category,
	}, warnings, nil
}

// SplitName splits a space-separated full name into given and family parts.
// The site prints family-name tokens in all uppercase; those tokens become
// the family name (title-cased on output) and the rest the given name.
//
// Known limitation: the uppercase heuristic is only reliable for ASCII-like
// scripts; names in other scripts may split incorrectly.
func SplitName(full string) (firstName, lastName string) {
	var first, last []string
	for _, word := range strings.Fields(full) {
		if isAllUppercase(word) {
			last = append(last, toTitleCase(word))
		} else {
			first = append(first, word)
		}
	}
	return strings.Join(first, " "), strings.Join(last, " ")
}

func isAllUppercase(word string) bool {
	for _, r := range word {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return len(word) > 0
}

func toTitleCase(word string) string {
	var b strings.Builder
	for i, r := range word {
		if i == 0 {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func parseCountryCode(nameDiv *goquery.Selection) (string, error) {
	span := nameDiv.Find("span").First()
	if span.Length() == 0 {
		return "", fmt.Errorf("can't find country code")
	}
	text := strings.TrimSpace(span.Text())
	if !strings.HasPrefix(text, "(") || !strings.HasSuffix(text, ")") {
		return "", fmt.Errorf("invalid country code (%q)", text)
	}
	inner := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(text, "("), ")"))
	if len(inner) == 0 {
		return "", fmt.Errorf("invalid country code (%q)", text)
	}
	return inner[0], nil
}

// divsWithClass returns divs whose class attribute matches exactly. The site
// uses "contenu_typeinfojoueur" and "contenu_typeinfojoueur even" as two
// distinct markers, so a CSS class selector would conflate them.
func divsWithClass(doc *goquery.Document, class string) []*goquery.Selection {
	var out []*goquery.Selection
	doc.Find("div").Each(func(_ int, sel *goquery.Selection) {
		if attr, ok := sel.Attr("class"); ok && attr == class {
			out = append(out, sel)
		}
	})
	return out
}

// ownText returns the first non-empty direct text node of the selection,
// skipping text inside child elements such as the country span.
func ownText(sel *goquery.Selection) string {
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				if text := strings.TrimSpace(child.Data); text != "" {
					return text
				}
			}
		}
	}
	return ""
}
