package feeds

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rss := DefaultRSSFeeds(now)
	require.Len(t, rss, 10)
	assert.Equal(t, "rss_crypto_0", rss[0].ID)
	assert.Equal(t, "rss_financial_4", rss[4].ID)
	assert.Equal(t, "rss_politics_9", rss[9].ID)
	assert.Equal(t, "2025-03-10T12:00:00.000Z", rss[0].AddedAt)

	topics := DefaultPolymarketTopics(now)
	require.Len(t, topics, 3)
	assert.True(t, strings.HasPrefix(topics[0].ID, "pm_crypto_"))
	assert.NotEqual(t, topics[0].ID, DefaultPolymarketTopics(now)[0].ID)

	accounts := DefaultTwitterAccounts(now)
	require.Len(t, accounts, 5)
	channels := DefaultTelegramChannels(now)
	require.Len(t, channels, 3)
	assert.Equal(t, "https://t.me/coindesk", channels[0].URL)

	for _, a := range accounts {
		assert.True(t, a.Enabled)
	}
}

func TestFindRelevant(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"crypto", []string{"CoinDesk", "Cointelegraph", "CryptoSlate", "Decrypt"}},
		{"bloomberg markets", []string{"Bloomberg Markets"}},
		{"cnn", []string{"CNN Politics"}},
		{"a b", nil},
		{"weather", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var names []string
			for _, f := range FindRelevant(tt.query) {
				names = append(names, f.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
