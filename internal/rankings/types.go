// Package rankings defines core types shared across subsystems.
package rankings

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which federation site a record was scraped from.
type Source string

// Supported scraping sources.
const (
	SourceITSF Source = "itsf"
	SourceDTFB Source = "dtfb"
)

// BirthYearUnknown is stored when the profile page carries a birth year that
// does not parse as a number. The record is still ingested.
const BirthYearUnknown = 0

// PlayerCategory is the closed vocabulary used on ITSF player profiles.
type PlayerCategory string

// Player categories persisted in the players table.
const (
	CategoryMen          PlayerCategory = "men"
	CategoryWomen        PlayerCategory = "women"
	CategoryJuniorMale   PlayerCategory = "junior_male"
	CategoryJuniorFemale PlayerCategory = "junior_female"
	CategorySeniorMale   PlayerCategory = "senior_male"
	CategorySeniorFemale PlayerCategory = "senior_female"
)

// ParsePlayerCategory maps the profile page vocabulary to a PlayerCategory.
// Unrecognized text is a hard failure; the category is an identity field.
func ParsePlayerCategory(text string) (PlayerCategory, error) {
	switch strings.TrimSpace(text) {
	case "MEN":
		return CategoryMen, nil
	case "WOMEN":
		return CategoryWomen, nil
	case "JUNIOR MALE":
		return CategoryJuniorMale, nil
	case "JUNIOR FEMALE":
		return CategoryJuniorFemale, nil
	case "SENIOR MALE":
		return CategorySeniorMale, nil
	case "SENIOR FEMALE":
		return CategorySeniorFemale, nil
	default:
		return "", fmt.Errorf("invalid player category %q", text)
	}
}

// RankingCategory selects which ranking list to query.
type RankingCategory string

// Ranking categories accepted by the ingest endpoints.
const (
	RankingOpen   RankingCategory = "open"
	RankingWomen  RankingCategory = "women"
	RankingSenior RankingCategory = "senior"
	RankingJunior RankingCategory = "junior"
)

// AllRankingCategories returns every category in a stable order.
func AllRankingCategories() []RankingCategory {
	return []RankingCategory{RankingOpen, RankingWomen, RankingSenior, RankingJunior}
}

// ParseRankingCategory maps request input to a RankingCategory.
func ParseRankingCategory(text string) (RankingCategory, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "open":
		return RankingOpen, nil
	case "women":
		return RankingWomen, nil
	case "senior":
		return RankingSenior, nil
	case "junior":
		return RankingJunior, nil
	default:
		return "", fmt.Errorf("invalid ranking category %q, must be one of ['open', 'women', 'senior', 'junior']", text)
	}
}

// RankingClass distinguishes singles, doubles and combined lists. The three
// values are genuinely distinct; they map to different source URLs and
// different persisted rankings.
type RankingClass string

// Ranking classes accepted by the ingest endpoints.
const (
	ClassSingles  RankingClass = "singles"
	ClassDoubles  RankingClass = "doubles"
	ClassCombined RankingClass = "combined"
)

// AllRankingClasses returns every class in a stable order.
func AllRankingClasses() []RankingClass {
	return []RankingClass{ClassSingles, ClassDoubles, ClassCombined}
}

// ParseRankingClass maps request input to a RankingClass.
func ParseRankingClass(text string) (RankingClass, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "singles":
		return ClassSingles, nil
	case "doubles":
		return ClassDoubles, nil
	case "combined":
		return ClassCombined, nil
	default:
		return "", fmt.Errorf("invalid ranking class %q, must be one of ['singles', 'doubles', 'combined']", text)
	}
}

// Player is one normalized profile record, keyed by the ITSF license number.
type Player struct {
	ITSFID      int            `json:"itsf_id"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	BirthYear   int            `json:"birth_year"`
	CountryCode string         `json:"country_code"`
	Category    PlayerCategory `json:"category"`
}

// RankingEntry is one (place, player) pair inside a ranking list.
type RankingEntry struct {
	Place    int `json:"place"`
	PlayerID int `json:"player_id"`
}

// Ranking is one complete ranking list for a (source, year, category, class)
// coordinate. It is persisted as a single all-or-nothing batch: the header
// row plus exactly len(Entries) entry rows.
type Ranking struct {
	Source    Source          `json:"source"`
	Year      int             `json:"year"`
	Category  RankingCategory `json:"category"`
	Class     RankingClass    `json:"class"`
	QueriedAt time.Time       `json:"queried_at"`
	Entries   []RankingEntry  `json:"entries"`
}

// Key identifies the logical unit a Ranking replaces when re-ingested.
func (r Ranking) Key() string {
	return fmt.Sprintf("%s/%d/%s/%s", r.Source, r.Year, r.Category, r.Class)
}
