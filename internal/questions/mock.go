package questions

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/normalize"
)

var mockTemplates = []string{
	"Will Bitcoin reach ${price} within the next 24 hours?",
	"Will Ethereum surpass ${price} by tomorrow (UTC)?",
	"Will ${token} be listed on a major exchange within 24 hours?",
	"Will ${exchange} announce a new token listing within the next 24 hours?",
	"Will the total crypto market cap exceed ${amount} trillion within 24 hours?",
	"Will ${token} increase by more than ${percent}% within the next 24 hours?",
	"Will ${project} release their mainnet upgrade within 24 hours?",
	"Will ${token} experience a price surge above ${price} by tomorrow?",
	"Will a major partnership be announced in the crypto space within 24 hours?",
	"Will ${exchange} launch futures trading for ${token} within the next 24 hours?",
	"Will the ${token} network see increased activity by more than ${percent}% within 24 hours?",
	"Will a major crypto influencer endorse ${token} within the next 24 hours?",
	"Will ${token} break its all-time high within the next 24 hours?",
	"Will trading volume for ${token} exceed ${amount} billion within 24 hours?",
	"Will a major crypto protocol announce a security update within the next 24 hours?",
}

var mockValues = map[string][]string{
	"token":    {"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE", "MATIC", "DOT", "LINK", "UNI"},
	"exchange": {"Binance", "Coinbase", "Kraken", "OKX", "Bybit"},
	"project":  {"Ethereum", "Solana", "Cardano", "Polkadot", "Avalanche"},
	"price":    {"$50,000", "$60,000", "$70,000", "$80,000", "$90,000", "$100,000", "$3,000", "$4,000", "$5,000"},
	"percent":  {"5", "10", "15", "20", "25"},
	"amount":   {"1", "2", "3", "5", "10"},
}

var placeholder = regexp.MustCompile(`\$\{(\w+)\}`)

// Mock produces template questions without a model. The same seed and posts
// always yield the same questions, apart from ids and timestamps.
type Mock struct {
	rng *rand.Rand
	now func() time.Time
}

func NewMock(seed uint64) *Mock {
	return &Mock{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: time.Now}
}

// Generate returns 10 to 15 questions, each citing 1 to 3 distinct posts.
func (m *Mock) Generate(posts []models.UnifiedPost) ([]models.GeneratedQuestion, error) {
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}

	now := m.now()
	createdAt := normalize.ISO(now, now)
	byID := make(map[string]models.SourceType, len(posts))
	for _, p := range posts {
		byID[p.ID] = p.Source
	}

	count := 10 + m.rng.IntN(6)
	out := make([]models.GeneratedQuestion, 0, count)
	for i := 0; i < count; i++ {
		picks := 1 + m.rng.IntN(3)
		var ids []string
		for j := 0; j < picks; j++ {
			ids = append(ids, posts[m.rng.IntN(len(posts))].ID)
		}
		ids, kinds, _ := ground(ids, byID)

		out = append(out, models.GeneratedQuestion{
			ID:        fmt.Sprintf("q_%d_%d", now.UnixMilli(), i),
			Question:  NormalizeQuestion(m.question()),
			SourceIDs: ids,
			Sources:   kinds,
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

func (m *Mock) question() string {
	tmpl := mockTemplates[m.rng.IntN(len(mockTemplates))]
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		values := mockValues[placeholder.FindStringSubmatch(match)[1]]
		return values[m.rng.IntN(len(values))]
	})
}
