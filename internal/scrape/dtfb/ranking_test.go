package dtfb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foosdb/rankingsd/internal/rankings"
)

func seasonPage(rows ...string) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><table class="rangliste"><tbody>`)
	for _, row := range rows {
		b.WriteString(row)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return []byte(b.String())
}

func seasonRow(place, lizenz int) string {
	return fmt.Sprintf(`<tr><td>%d.</td><td><a href="/index.php/spieler?lizenz=%d">Spieler</a></td><td>123</td></tr>`, place, lizenz)
}

func TestParseRankingPage(t *testing.T) {
	t.Parallel()

	entries, err := ParseRankingPage(seasonPage(seasonRow(1, 2001), seasonRow(2, 2002)))
	require.NoError(t, err)
	require.Equal(t, []rankings.RankingEntry{
		{Place: 1, PlayerID: 2001},
		{Place: 2, PlayerID: 2002},
	}, entries)
}

func TestParseRankingPageMissingTable(t *testing.T) {
	t.Parallel()

	_, err := ParseRankingPage([]byte(`<html><body><div>umbau</div></body></html>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rangliste")
}

func TestParseRankingPageMalformedRow(t *testing.T) {
	t.Parallel()

	_, err := ParseRankingPage(seasonPage(
		seasonRow(1, 2001),
		`<tr><td>zwei</td><td><a href="/spieler?lizenz=2002">Spieler</a></td></tr>`,
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid place")
}

func TestRankingURL(t *testing.T) {
	t.Parallel()

	url := RankingURL(2023, rankings.RankingWomen, rankings.ClassSingles, 2)
	assert.Equal(t, "https://dtfb.de/index.php/rangliste?saison=2023&kategorie=damen&wertung=einzel&seite=2", url)
}
