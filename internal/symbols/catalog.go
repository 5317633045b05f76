// Package symbols holds the visual symbol cards a student can tap to
// communicate without speaking or typing.
package symbols

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/classvoice/internal/domain/model"
)

//go:embed cards.yaml
var defaultCards []byte

// Errors returned by the catalog.
var (
	ErrUnknownCard = errors.New("unknown symbol card")
	ErrEmptyDeck   = errors.New("symbol catalog has no cards")
)

type document struct {
	Cards []model.SymbolCard `yaml:"cards"`
}

// Catalog is an ordered, read-only set of cards keyed by label.
type Catalog struct {
	cards   []model.SymbolCard
	byLabel map[string]model.SymbolCard
}

// Default returns the built-in twelve-card deck.
func Default() *Catalog {
	c, err := Parse(defaultCards)
	if err != nil {
		panic(fmt.Sprintf("symbols: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path gives Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	return Parse(b)
}

// Parse decodes a catalog document. Labels must be unique ignoring case.
func Parse(b []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	if len(doc.Cards) == 0 {
		return nil, ErrEmptyDeck
	}
	c := &Catalog{byLabel: make(map[string]model.SymbolCard, len(doc.Cards))}
	for i, card := range doc.Cards {
		if card.Label == "" || card.Emoji == "" {
			return nil, fmt.Errorf("symbols: card %d needs a label and an emoji", i)
		}
		key := strings.ToLower(card.Label)
		if _, dup := c.byLabel[key]; dup {
			return nil, fmt.Errorf("symbols: duplicate card %q", card.Label)
		}
		c.byLabel[key] = card
		c.cards = append(c.cards, card)
	}
	return c, nil
}

// Cards returns the cards in display order.
func (c *Catalog) Cards() []model.SymbolCard {
	return append([]model.SymbolCard(nil), c.cards...)
}

// Lookup finds a card by label, ignoring case.
func (c *Catalog) Lookup(label string) (model.SymbolCard, error) {
	card, ok := c.byLabel[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return model.SymbolCard{}, fmt.Errorf("%w: %q", ErrUnknownCard, label)
	}
	return card, nil
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, card := range c.cards {
		if !seen[card.Category] {
			seen[card.Category] = true
			out = append(out, card.Category)
		}
	}
	return out
}
