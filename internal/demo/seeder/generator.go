package seeder

import (
	"fmt"
	"math"
	"math/rand"
)

// EventRow is the demo table schema. The id and timestamp columns line up
// with the resolver's default key and ordering columns, so a seeded
// warehouse exercises snapshot dedup out of the box.
type EventRow struct {
	ID        string  `parquet:"id"`
	Timestamp int64   `parquet:"timestamp"`
	EventType string  `parquet:"event_type"`
	Amount    float64 `parquet:"amount"`
	Country   string  `parquet:"country"`
	Device    string  `parquet:"device"`
}

type Generator struct {
	rnd            *rand.Rand
	keyCardinality int
	clock          int64
}

func NewGenerator(seed int64, keyCardinality int) *Generator {
	return &Generator{
		rnd:            rand.New(rand.NewSource(seed)),
		keyCardinality: keyCardinality,
	}
}

// NextBatch produces count rows with strictly increasing timestamps. Keys
// repeat across calls, so later snapshots overwrite earlier versions of the
// same entity.
func (g *Generator) NextBatch(count int) []EventRow {
	rows := make([]EventRow, 0, count)
	for i := 0; i < count; i++ {
		g.clock++
		eventType := g.pickEventType()
		rows = append(rows, EventRow{
			ID:        fmt.Sprintf("user-%04d", g.rnd.Intn(g.keyCardinality)+1),
			Timestamp: g.clock,
			EventType: eventType,
			Amount:    g.pickAmount(eventType),
			Country:   pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
			Device:    pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		})
	}
	return rows
}

func (g *Generator) pickEventType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
