// Package storagetest holds the behaviour every storage backend shares.
// Backend packages run it against a fresh store per case.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/IlyasAtabaev731/tcg-trade/internal/api"
	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns an empty store for one test case.
type Opener func(t *testing.T) api.Storage

func Run(t *testing.T, open Opener) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s api.Storage)
	}{
		{"Users", testUsers},
		{"UpdateUser", testUpdateUser},
		{"CardsAndAttacks", testCardsAndAttacks},
		{"CardFilter", testCardFilter},
		{"DeleteCard", testDeleteCard},
		{"GrantCard", testGrantCard},
		{"Catalogs", testCatalogs},
		{"Mailbox", testMailbox},
		{"AcceptTrade", testAcceptTrade},
		{"AcceptTradeMissingCard", testAcceptTradeMissingCard},
		{"SwapCards", testSwapCards},
		{"ConcurrentSwaps", testConcurrentSwaps},
		{"ConcurrentAccepts", testConcurrentAccepts},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func newUser(t *testing.T, s api.Storage, name string) models.User {
	t.Helper()

	u := models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash-" + name,
	}
	require.NoError(t, s.SaveUser(context.Background(), u))
	return u
}

func newCard(t *testing.T, s api.Storage, name string, value int) models.Card {
	t.Helper()

	c := models.Card{
		ID:          uuid.NewString(),
		Name:        name,
		NPokeDex:    1,
		Type:        "Grass",
		Weakness:    "Fire",
		HP:          50,
		Attacks:     []string{},
		RetreatCost: []string{"Colorless"},
		Phase:       "Basic",
		Value:       value,
		Rarity:      "Common",
	}
	require.NoError(t, s.SaveCard(context.Background(), c))
	return c
}

func owned(t *testing.T, s api.Storage, userID string) models.Collection {
	t.Helper()

	u, err := s.User(context.Background(), userID)
	require.NoError(t, err)
	return u.Cards
}

func testUsers(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	newUser(t, s, "ashley")
	newUser(t, s, "brock")

	err := s.SaveUser(ctx, models.User{ID: uuid.NewString(), Name: "ash", Email: "new@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, storage.ErrUserExists)

	err = s.SaveUser(ctx, models.User{ID: uuid.NewString(), Name: "gary", Email: "ash@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, storage.ErrEmailExists)

	got, err := s.User(ctx, ash.ID)
	require.NoError(t, err)
	assert.Equal(t, "ash", got.Name)
	assert.Equal(t, "hash-ash", got.PasswordHash)
	assert.Empty(t, got.Cards)
	assert.Empty(t, got.Mailbox)

	got, err = s.UserByEmail(ctx, "ash@example.com")
	require.NoError(t, err)
	assert.Equal(t, ash.ID, got.ID)

	got, err = s.UserByName(ctx, "ash")
	require.NoError(t, err)
	assert.Equal(t, ash.ID, got.ID)

	_, err = s.User(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	users, err := s.Users(ctx, "ASH")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = s.Users(ctx, "")
	require.NoError(t, err)
	assert.Len(t, users, 3)

	require.NoError(t, s.DeleteUser(ctx, ash.ID))
	assert.ErrorIs(t, s.DeleteUser(ctx, ash.ID), storage.ErrUserNotFound)
}

func testUpdateUser(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	newUser(t, s, "brock")

	ash.Name = "brock"
	assert.ErrorIs(t, s.UpdateUser(ctx, ash), storage.ErrUserExists)

	ash.Name = "ash"
	ash.Email = "brock@example.com"
	assert.ErrorIs(t, s.UpdateUser(ctx, ash), storage.ErrEmailExists)

	ash.Name = "ketchum"
	ash.Email = "ketchum@example.com"
	ash.PasswordHash = "new-hash"
	require.NoError(t, s.UpdateUser(ctx, ash))

	got, err := s.User(ctx, ash.ID)
	require.NoError(t, err)
	assert.Equal(t, "ketchum", got.Name)
	assert.Equal(t, "ketchum@example.com", got.Email)
	assert.Equal(t, "new-hash", got.PasswordHash)

	missing := models.User{ID: uuid.NewString(), Name: "x", Email: "x@example.com"}
	assert.ErrorIs(t, s.UpdateUser(ctx, missing), storage.ErrUserNotFound)
}

func testCardsAndAttacks(t *testing.T, s api.Storage) {
	ctx := context.Background()

	attack := models.Attack{
		ID:       uuid.NewString(),
		Name:     "Vine Whip",
		Energies: []string{"Grass", "Colorless"},
		Damage:   30,
		Effect:   "Nothing special.",
	}
	require.NoError(t, s.SaveAttack(ctx, attack))

	got, err := s.Attack(ctx, attack.ID)
	require.NoError(t, err)
	assert.Equal(t, attack, *got)

	_, err = s.Attack(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrAttackNotFound)

	card := newCard(t, s, "Bulbasaur", 5)
	card.Attacks = []string{attack.ID}
	card.Description = "seed"
	require.NoError(t, s.UpdateCard(ctx, card))

	stored, err := s.Card(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card, *stored)

	stored, err = s.CardByName(ctx, "Bulbasaur")
	require.NoError(t, err)
	assert.Equal(t, card.ID, stored.ID)

	_, err = s.Card(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrCardNotFound)

	missing := card
	missing.ID = uuid.NewString()
	assert.ErrorIs(t, s.UpdateCard(ctx, missing), storage.ErrCardNotFound)
}

func testCardFilter(t *testing.T, s api.Storage) {
	ctx := context.Background()
	charmander := newCard(t, s, "Charmander", 10)
	charizard := newCard(t, s, "Charizard", 300)
	newCard(t, s, "Squirtle", 10)

	cards, err := s.Cards(ctx, models.CardFilter{})
	require.NoError(t, err)
	assert.Len(t, cards, 3)

	cards, err = s.Cards(ctx, models.CardFilter{Name: "CHAR"})
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	ten := 10
	cards, err = s.Cards(ctx, models.CardFilter{Name: "char", Value: &ten})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, charmander.ID, cards[0].ID)

	cards, err = s.Cards(ctx, models.CardFilter{IDs: []string{charizard.ID}})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, charizard.ID, cards[0].ID)

	cards, err = s.Cards(ctx, models.CardFilter{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, cards)

	cards, err = s.Cards(ctx, models.CardFilter{Rarity: "Rare"})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func testDeleteCard(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	keep := newCard(t, s, "Pikachu", 10)
	drop := newCard(t, s, "Raichu", 20)

	require.NoError(t, s.GrantCard(ctx, ash.ID, keep.ID))
	require.NoError(t, s.GrantCard(ctx, ash.ID, drop.ID))
	require.NoError(t, s.SaveCatalog(ctx, models.Catalog{ID: uuid.NewString(), Name: "Electric", Cards: []string{keep.ID, drop.ID}}))

	require.NoError(t, s.DeleteCard(ctx, drop.ID))
	assert.ErrorIs(t, s.DeleteCard(ctx, drop.ID), storage.ErrCardNotFound)
	assert.ErrorIs(t, s.DeleteCard(ctx, uuid.NewString()), storage.ErrCardNotFound)

	cards := owned(t, s, ash.ID)
	assert.Equal(t, 1, cards.Quantity(keep.ID))
	assert.Equal(t, 0, cards.Quantity(drop.ID))

	catalog, err := s.Catalog(ctx, "Electric")
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, catalog.Cards)

	require.NoError(t, s.DeleteCards(ctx))
	all, err := s.Cards(ctx, models.CardFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, owned(t, s, ash.ID))
}

func testGrantCard(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	first := newCard(t, s, "Pidgey", 1)
	second := newCard(t, s, "Rattata", 1)

	require.NoError(t, s.GrantCard(ctx, ash.ID, first.ID))
	require.NoError(t, s.GrantCard(ctx, ash.ID, second.ID))
	require.NoError(t, s.GrantCard(ctx, ash.ID, first.ID))

	cards := owned(t, s, ash.ID)
	require.Len(t, cards, 2)
	assert.Equal(t, models.OwnedCard{CardID: first.ID, Quantity: 2}, cards[0])
	assert.Equal(t, models.OwnedCard{CardID: second.ID, Quantity: 1}, cards[1])

	assert.ErrorIs(t, s.GrantCard(ctx, uuid.NewString(), first.ID), storage.ErrUserNotFound)
	assert.ErrorIs(t, s.GrantCard(ctx, ash.ID, uuid.NewString()), storage.ErrCardNotFound)
}

func testCatalogs(t *testing.T, s api.Storage) {
	ctx := context.Background()
	a := newCard(t, s, "Abra", 1)
	b := newCard(t, s, "Kadabra", 2)

	catalog := models.Catalog{ID: uuid.NewString(), Name: "Psychic", Cards: []string{b.ID, a.ID}}
	require.NoError(t, s.SaveCatalog(ctx, catalog))
	require.NoError(t, s.SaveCatalog(ctx, models.Catalog{ID: uuid.NewString(), Name: "Empty"}))

	dup := models.Catalog{ID: uuid.NewString(), Name: "Psychic"}
	assert.ErrorIs(t, s.SaveCatalog(ctx, dup), storage.ErrCatalogExists)

	got, err := s.Catalog(ctx, "Psychic")
	require.NoError(t, err)
	assert.Equal(t, catalog, *got)

	empty, err := s.Catalog(ctx, "Empty")
	require.NoError(t, err)
	assert.NotNil(t, empty.Cards)
	assert.Empty(t, empty.Cards)

	catalogs, err := s.Catalogs(ctx)
	require.NoError(t, err)
	require.Len(t, catalogs, 2)
	assert.Equal(t, "Empty", catalogs[0].Name)

	require.NoError(t, s.SetCatalogCards(ctx, "Psychic", []string{a.ID}))
	got, err = s.Catalog(ctx, "Psychic")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, got.Cards)

	assert.ErrorIs(t, s.SetCatalogCards(ctx, "Missing", nil), storage.ErrCatalogNotFound)

	require.NoError(t, s.DeleteCatalog(ctx, "Psychic"))
	assert.ErrorIs(t, s.DeleteCatalog(ctx, "Psychic"), storage.ErrCatalogNotFound)
	_, err = s.Catalog(ctx, "Psychic")
	assert.ErrorIs(t, err, storage.ErrCatalogNotFound)
}

func request(from, fromCard, to, toCard string) models.TradeRequest {
	req := models.TradeRequest{
		ID:              uuid.NewString(),
		RequesterUserID: from,
		RequesterCardID: fromCard,
		TargetUserID:    to,
		TargetCardID:    toCard,
	}
	req.Message = req.DefaultMessage()
	return req
}

func testMailbox(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	misty := newUser(t, s, "misty")
	x, y, z := uuid.NewString(), uuid.NewString(), uuid.NewString()

	first := request(ash.ID, x, misty.ID, y)
	second := request(ash.ID, z, misty.ID, y)
	require.NoError(t, s.AddTradeRequest(ctx, first))
	require.NoError(t, s.AddTradeRequest(ctx, second))

	missing := request(ash.ID, x, uuid.NewString(), y)
	assert.ErrorIs(t, s.AddTradeRequest(ctx, missing), storage.ErrUserNotFound)

	mailbox, err := s.Mailbox(ctx, misty.ID)
	require.NoError(t, err)
	require.Len(t, mailbox, 2)
	assert.Equal(t, first.ID, mailbox[0].ID)
	assert.Equal(t, second.ID, mailbox[1].ID)

	_, err = s.Mailbox(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	first.RequesterCardID = z
	first.Message = "changed my mind"
	require.NoError(t, s.UpdateTradeRequest(ctx, first))

	mailbox, err = s.Mailbox(ctx, misty.ID)
	require.NoError(t, err)
	assert.Equal(t, z, mailbox[0].RequesterCardID)
	assert.Equal(t, "changed my mind", mailbox[0].Message)

	assert.ErrorIs(t, s.UpdateTradeRequest(ctx, missing), storage.ErrUserNotFound)
	unknown := request(ash.ID, x, misty.ID, y)
	assert.ErrorIs(t, s.UpdateTradeRequest(ctx, unknown), storage.ErrRequestNotFound)

	require.NoError(t, s.DeleteTradeRequest(ctx, misty.ID, first.ID))
	assert.ErrorIs(t, s.DeleteTradeRequest(ctx, misty.ID, first.ID), storage.ErrRequestNotFound)
	assert.ErrorIs(t, s.DeleteTradeRequest(ctx, uuid.NewString(), second.ID), storage.ErrUserNotFound)

	mailbox, err = s.Mailbox(ctx, misty.ID)
	require.NoError(t, err)
	require.Len(t, mailbox, 1)
	assert.Equal(t, second.ID, mailbox[0].ID)
}

func testAcceptTrade(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	misty := newUser(t, s, "misty")
	x := newCard(t, s, "Pikachu", 10)
	y := newCard(t, s, "Staryu", 10)

	require.NoError(t, s.GrantCard(ctx, ash.ID, x.ID))
	require.NoError(t, s.GrantCard(ctx, ash.ID, x.ID))
	require.NoError(t, s.GrantCard(ctx, misty.ID, y.ID))

	req := request(ash.ID, x.ID, misty.ID, y.ID)
	require.NoError(t, s.AddTradeRequest(ctx, req))

	tx, err := s.AcceptTradeRequest(ctx, misty.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTrade, tx.Kind)
	assert.Equal(t, ash.ID, tx.FromUserID)
	assert.Equal(t, x.ID, tx.FromCardID)
	assert.Equal(t, misty.ID, tx.ToUserID)
	assert.Equal(t, y.ID, tx.ToCardID)

	ashCards := owned(t, s, ash.ID)
	assert.Equal(t, 1, ashCards.Quantity(x.ID))
	assert.Equal(t, 1, ashCards.Quantity(y.ID))

	mistyCards := owned(t, s, misty.ID)
	assert.Equal(t, 1, mistyCards.Quantity(x.ID))
	assert.Equal(t, 0, mistyCards.Quantity(y.ID))

	mailbox, err := s.Mailbox(ctx, misty.ID)
	require.NoError(t, err)
	assert.Empty(t, mailbox)

	_, err = s.AcceptTradeRequest(ctx, misty.ID, req.ID)
	assert.ErrorIs(t, err, storage.ErrRequestNotFound)
	_, err = s.AcceptTradeRequest(ctx, uuid.NewString(), req.ID)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	txs, err := s.Transactions(ctx, misty.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)

	_, err = s.Transactions(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func testAcceptTradeMissingCard(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	misty := newUser(t, s, "misty")
	x := newCard(t, s, "Pikachu", 10)
	y := newCard(t, s, "Staryu", 10)

	require.NoError(t, s.GrantCard(ctx, misty.ID, y.ID))

	req := request(ash.ID, x.ID, misty.ID, y.ID)
	require.NoError(t, s.AddTradeRequest(ctx, req))

	_, err := s.AcceptTradeRequest(ctx, misty.ID, req.ID)
	assert.ErrorIs(t, err, storage.ErrCardNotOwned)

	assert.Empty(t, owned(t, s, ash.ID))
	assert.Equal(t, models.Collection{{CardID: y.ID, Quantity: 1}}, owned(t, s, misty.ID))

	mailbox, err := s.Mailbox(ctx, misty.ID)
	require.NoError(t, err)
	assert.Len(t, mailbox, 1)

	txs, err := s.Transactions(ctx, misty.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	require.NoError(t, s.DeleteUser(ctx, ash.ID))
	_, err = s.AcceptTradeRequest(ctx, misty.ID, req.ID)
	assert.ErrorIs(t, err, storage.ErrRequesterNotFound)
}

func testSwapCards(t *testing.T, s api.Storage) {
	ctx := context.Background()
	ash := newUser(t, s, "ash")
	brock := newUser(t, s, "brock")
	x := newCard(t, s, "Vulpix", 10)
	y := newCard(t, s, "Onix", 10)

	require.NoError(t, s.GrantCard(ctx, ash.ID, x.ID))
	require.NoError(t, s.GrantCard(ctx, brock.ID, y.ID))

	swap := storage.Swap{UserA: ash.ID, CardA: x.ID, UserB: brock.ID, CardB: y.ID}
	tx, err := s.SwapCards(ctx, swap)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionDirect, tx.Kind)

	assert.Equal(t, models.Collection{{CardID: y.ID, Quantity: 1}}, owned(t, s, ash.ID))
	assert.Equal(t, models.Collection{{CardID: x.ID, Quantity: 1}}, owned(t, s, brock.ID))

	_, err = s.SwapCards(ctx, swap)
	assert.ErrorIs(t, err, storage.ErrCardNotOwned)
	assert.Equal(t, models.Collection{{CardID: y.ID, Quantity: 1}}, owned(t, s, ash.ID))

	_, err = s.SwapCards(ctx, storage.Swap{UserA: ash.ID, CardA: y.ID, UserB: uuid.NewString(), CardB: x.ID})
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	txs, err := s.Transactions(ctx, ash.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

const contenders = 8

// race runs fn for every index at once and collects the results.
func race(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()

	return errs
}

// winner checks that exactly one call went through and the rest found the
// card already gone. It returns the index of the successful call.
func winner(t *testing.T, errs []error) int {
	t.Helper()

	won := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, won, "more than one exchange consumed the same copy")
			won = i
			continue
		}
		assert.ErrorIs(t, err, storage.ErrCardNotOwned)
	}
	require.NotEqual(t, -1, won, "no exchange went through")

	return won
}

// total sums the copies of the card held by the users.
func total(t *testing.T, s api.Storage, cardID string, users []models.User) int {
	t.Helper()

	n := 0
	for _, u := range users {
		n += owned(t, s, u.ID).Quantity(cardID)
	}
	return n
}

// bidders creates users that each hold one copy of their own card.
func bidders(t *testing.T, s api.Storage) ([]models.User, []models.Card) {
	t.Helper()

	users := make([]models.User, contenders)
	cards := make([]models.Card, contenders)
	for i := range users {
		users[i] = newUser(t, s, fmt.Sprintf("bidder%d", i))
		cards[i] = newCard(t, s, fmt.Sprintf("Rattata%d", i), 1)
		require.NoError(t, s.GrantCard(context.Background(), users[i].ID, cards[i].ID))
	}
	return users, cards
}

func testConcurrentSwaps(t *testing.T, s api.Storage) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	prize := newCard(t, s, "Mew", 500)
	require.NoError(t, s.GrantCard(ctx, owner.ID, prize.ID))
	users, cards := bidders(t, s)

	errs := race(contenders, func(i int) error {
		_, err := s.SwapCards(ctx, storage.Swap{UserA: owner.ID, CardA: prize.ID, UserB: users[i].ID, CardB: cards[i].ID})
		return err
	})
	won := winner(t, errs)

	everyone := append([]models.User{owner}, users...)
	assert.Equal(t, 1, total(t, s, prize.ID, everyone))
	assert.Equal(t, 1, owned(t, s, users[won].ID).Quantity(prize.ID))
	for i, card := range cards {
		assert.Equal(t, 1, total(t, s, card.ID, everyone))
		if i != won {
			assert.Equal(t, 1, owned(t, s, users[i].ID).Quantity(card.ID))
		}
	}

	txs, err := s.Transactions(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func testConcurrentAccepts(t *testing.T, s api.Storage) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	prize := newCard(t, s, "Mew", 500)
	require.NoError(t, s.GrantCard(ctx, owner.ID, prize.ID))
	users, cards := bidders(t, s)

	requests := make([]models.TradeRequest, contenders)
	for i := range requests {
		requests[i] = request(owner.ID, prize.ID, users[i].ID, cards[i].ID)
		require.NoError(t, s.AddTradeRequest(ctx, requests[i]))
	}

	errs := race(contenders, func(i int) error {
		_, err := s.AcceptTradeRequest(ctx, users[i].ID, requests[i].ID)
		return err
	})
	won := winner(t, errs)

	everyone := append([]models.User{owner}, users...)
	assert.Equal(t, 1, total(t, s, prize.ID, everyone))
	assert.Equal(t, 1, owned(t, s, users[won].ID).Quantity(prize.ID))
	for i, card := range cards {
		assert.Equal(t, 1, total(t, s, card.ID, everyone))

		mailbox, err := s.Mailbox(ctx, users[i].ID)
		require.NoError(t, err)
		if i == won {
			assert.Empty(t, mailbox)
		} else {
			assert.Len(t, mailbox, 1)
		}
	}

	txs, err := s.Transactions(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
