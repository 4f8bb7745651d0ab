package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionAddRemove(t *testing.T) {
	var c Collection

	c.Add("x")
	c.Add("y")
	c.Add("x")
	require.Equal(t, Collection{{CardID: "x", Quantity: 2}, {CardID: "y", Quantity: 1}}, c)

	assert.True(t, c.Remove("x"))
	assert.Equal(t, 1, c.Quantity("x"))

	assert.True(t, c.Remove("x"))
	assert.Equal(t, 0, c.Quantity("x"))
	assert.Len(t, c, 1)

	assert.False(t, c.Remove("x"))
	assert.False(t, c.Remove("missing"))
}

func TestCollectionPurge(t *testing.T) {
	c := Collection{{CardID: "x", Quantity: 3}, {CardID: "y", Quantity: 1}}

	c.Purge("x")
	assert.Equal(t, Collection{{CardID: "y", Quantity: 1}}, c)

	c.Purge("missing")
	assert.Len(t, c, 1)
}

func TestExchange(t *testing.T) {
	a := Collection{{CardID: "x", Quantity: 2}}
	b := Collection{{CardID: "y", Quantity: 1}}

	require.True(t, Exchange(&a, "x", &b, "y"))
	assert.Equal(t, 1, a.Quantity("x"))
	assert.Equal(t, 1, a.Quantity("y"))
	assert.Equal(t, 0, b.Quantity("y"))
	assert.Equal(t, 1, b.Quantity("x"))
}

func TestExchangeMissingCard(t *testing.T) {
	a := Collection{{CardID: "x", Quantity: 1}}
	b := Collection{{CardID: "z", Quantity: 1}}

	assert.False(t, Exchange(&a, "x", &b, "y"))
	assert.Equal(t, Collection{{CardID: "x", Quantity: 1}}, a)
	assert.Equal(t, Collection{{CardID: "z", Quantity: 1}}, b)
}

func TestExchangeSameCollection(t *testing.T) {
	a := Collection{{CardID: "x", Quantity: 1}, {CardID: "y", Quantity: 1}}

	assert.True(t, Exchange(&a, "x", &a, "y"))
	assert.Equal(t, 1, a.Quantity("x"))
	assert.Equal(t, 1, a.Quantity("y"))

	assert.False(t, Exchange(&a, "x", &a, "z"))
}

func TestCardFilterMatch(t *testing.T) {
	card := Card{ID: "1", Name: "Charizard", Type: "Fire", Value: 350, Rarity: "Ultra Rare"}
	value := 350
	other := 10

	cases := []struct {
		name   string
		filter CardFilter
		want   bool
	}{
		{"empty", CardFilter{}, true},
		{"name substring", CardFilter{Name: "zard"}, true},
		{"name case", CardFilter{Name: "CHAR"}, true},
		{"name miss", CardFilter{Name: "pika"}, false},
		{"type", CardFilter{Type: "Fire"}, true},
		{"type is exact", CardFilter{Type: "fire"}, false},
		{"value", CardFilter{Value: &value}, true},
		{"value miss", CardFilter{Value: &other}, false},
		{"all", CardFilter{Name: "char", Type: "Fire", Value: &value, Rarity: "Ultra Rare"}, true},
		{"one fails", CardFilter{Name: "char", Rarity: "Common"}, false},
		{"ids hit", CardFilter{IDs: []string{"2", "1"}}, true},
		{"ids empty", CardFilter{IDs: []string{}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Match(card))
		})
	}
}

func TestVocabularies(t *testing.T) {
	assert.True(t, IsEnergy("Psychic"))
	assert.False(t, IsEnergy("Plasma"))
	assert.True(t, IsPhase("Stage 1"))
	assert.False(t, IsPhase("stage 1"))
	assert.True(t, IsRarity("Ultra Rare"))
	assert.False(t, IsRarity("Mythic"))
}

func TestMailboxIndex(t *testing.T) {
	u := User{Mailbox: []TradeRequest{{ID: "a"}, {ID: "b"}}}

	assert.Equal(t, 1, u.MailboxIndex("b"))
	assert.Equal(t, -1, u.MailboxIndex("c"))
}
