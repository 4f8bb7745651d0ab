// Package memory keeps every document in process memory. It backs the local
// environment and the handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
)

type Storage struct {
	mu           sync.RWMutex
	users        map[string]models.User
	attacks      map[string]models.Attack
	cards        map[string]models.Card
	cardOrder    []string
	catalogs     map[string]models.Catalog
	transactions []models.Transaction
}

func New() *Storage {
	return &Storage{
		users:    make(map[string]models.User),
		attacks:  make(map[string]models.Attack),
		cards:    make(map[string]models.Card),
		catalogs: make(map[string]models.Catalog),
	}
}

func (s *Storage) Stop() error {
	return nil
}

func cloneUser(u models.User) models.User {
	u.Cards = append(models.Collection(nil), u.Cards...)
	u.Mailbox = append([]models.TradeRequest(nil), u.Mailbox...)
	return u
}

func (s *Storage) SaveUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Name == user.Name {
			return storage.ErrUserExists
		}
		if u.Email == user.Email {
			return storage.ErrEmailExists
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = cloneUser(user)

	return nil
}

func (s *Storage) User(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Email == email })
}

func (s *Storage) UserByName(_ context.Context, name string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Name == name })
}

func (s *Storage) findUser(match func(models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (s *Storage) Users(_ context.Context, name string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(name)) {
			continue
		}
		res = append(res, cloneUser(u))
	}
	sort.SliceStable(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})

	return res, nil
}

func (s *Storage) UpdateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}
	for id, u := range s.users {
		if id == user.ID {
			continue
		}
		if u.Name == user.Name {
			return storage.ErrUserExists
		}
		if u.Email == user.Email {
			return storage.ErrEmailExists
		}
	}
	current.Name = user.Name
	current.Email = user.Email
	current.PasswordHash = user.PasswordHash
	s.users[user.ID] = current

	return nil
}

func (s *Storage) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrUserNotFound
	}
	delete(s.users, id)

	return nil
}

func (s *Storage) GrantCard(_ context.Context, userID, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if _, ok := s.cards[cardID]; !ok {
		return storage.ErrCardNotFound
	}
	u = cloneUser(u)
	u.Cards.Add(cardID)
	s.users[userID] = u

	return nil
}

func (s *Storage) SaveAttack(_ context.Context, attack models.Attack) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attacks[attack.ID] = attack
	return nil
}

func (s *Storage) Attack(_ context.Context, id string) (*models.Attack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attacks[id]
	if !ok {
		return nil, storage.ErrAttackNotFound
	}
	return &a, nil
}

func (s *Storage) SaveCard(_ context.Context, card models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[card.ID]; !ok {
		s.cardOrder = append(s.cardOrder, card.ID)
	}
	s.cards[card.ID] = card
	return nil
}

func (s *Storage) Card(_ context.Context, id string) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cards[id]
	if !ok {
		return nil, storage.ErrCardNotFound
	}
	return &c, nil
}

func (s *Storage) CardByName(_ context.Context, name string) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.cardOrder {
		if c := s.cards[id]; c.Name == name {
			return &c, nil
		}
	}
	return nil, storage.ErrCardNotFound
}

func (s *Storage) Cards(_ context.Context, filter models.CardFilter) ([]models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]models.Card, 0)
	for _, id := range s.cardOrder {
		if c := s.cards[id]; filter.Match(c) {
			res = append(res, c)
		}
	}
	return res, nil
}

func (s *Storage) UpdateCard(_ context.Context, card models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[card.ID]; !ok {
		return storage.ErrCardNotFound
	}
	s.cards[card.ID] = card
	return nil
}

func (s *Storage) DeleteCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[id]; !ok {
		return storage.ErrCardNotFound
	}
	s.dropCard(id)
	return nil
}

func (s *Storage) DeleteCards(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range append([]string(nil), s.cardOrder...) {
		s.dropCard(id)
	}
	return nil
}

// dropCard removes the card and every reference held by users and catalogs.
// The caller holds the write lock.
func (s *Storage) dropCard(id string) {
	delete(s.cards, id)
	for i, cid := range s.cardOrder {
		if cid == id {
			s.cardOrder = append(s.cardOrder[:i], s.cardOrder[i+1:]...)
			break
		}
	}
	for uid, u := range s.users {
		if u.Cards.Quantity(id) == 0 {
			continue
		}
		u = cloneUser(u)
		u.Cards.Purge(id)
		s.users[uid] = u
	}
	for name, c := range s.catalogs {
		kept := make([]string, 0, len(c.Cards))
		for _, cid := range c.Cards {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		c.Cards = kept
		s.catalogs[name] = c
	}
}

func (s *Storage) SaveCatalog(_ context.Context, catalog models.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalogs[catalog.Name]; ok {
		return storage.ErrCatalogExists
	}
	catalog.Cards = append([]string{}, catalog.Cards...)
	s.catalogs[catalog.Name] = catalog
	return nil
}

func (s *Storage) Catalog(_ context.Context, name string) (*models.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.catalogs[name]
	if !ok {
		return nil, storage.ErrCatalogNotFound
	}
	c.Cards = append([]string{}, c.Cards...)
	return &c, nil
}

func (s *Storage) Catalogs(_ context.Context) ([]models.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]models.Catalog, 0, len(s.catalogs))
	for _, c := range s.catalogs {
		c.Cards = append([]string{}, c.Cards...)
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (s *Storage) SetCatalogCards(_ context.Context, name string, cardIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.catalogs[name]
	if !ok {
		return storage.ErrCatalogNotFound
	}
	c.Cards = append([]string{}, cardIDs...)
	s.catalogs[name] = c
	return nil
}

func (s *Storage) DeleteCatalog(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalogs[name]; !ok {
		return storage.ErrCatalogNotFound
	}
	delete(s.catalogs, name)
	return nil
}

func (s *Storage) AddTradeRequest(_ context.Context, req models.TradeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.users[req.TargetUserID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	target = cloneUser(target)
	target.Mailbox = append(target.Mailbox, req)
	s.users[target.ID] = target
	return nil
}

func (s *Storage) Mailbox(_ context.Context, userID string) ([]models.TradeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return append([]models.TradeRequest{}, u.Mailbox...), nil
}

func (s *Storage) UpdateTradeRequest(_ context.Context, req models.TradeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.TargetUserID]
	if !ok {
		return storage.ErrUserNotFound
	}
	idx := u.MailboxIndex(req.ID)
	if idx == -1 {
		return storage.ErrRequestNotFound
	}
	u = cloneUser(u)
	current := u.Mailbox[idx]
	current.RequesterCardID = req.RequesterCardID
	current.TargetCardID = req.TargetCardID
	current.Message = req.Message
	u.Mailbox[idx] = current
	s.users[u.ID] = u
	return nil
}

func (s *Storage) DeleteTradeRequest(_ context.Context, userID, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	idx := u.MailboxIndex(requestID)
	if idx == -1 {
		return storage.ErrRequestNotFound
	}
	u = cloneUser(u)
	u.Mailbox = append(u.Mailbox[:idx], u.Mailbox[idx+1:]...)
	s.users[u.ID] = u
	return nil
}

func (s *Storage) AcceptTradeRequest(_ context.Context, userID, requestID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	idx := target.MailboxIndex(requestID)
	if idx == -1 {
		return nil, storage.ErrRequestNotFound
	}
	req := target.Mailbox[idx]
	requester, ok := s.users[req.RequesterUserID]
	if !ok {
		return nil, storage.ErrRequesterNotFound
	}

	target = cloneUser(target)
	requester = cloneUser(requester)
	offered := &requester.Cards
	if requester.ID == target.ID {
		offered = &target.Cards
	}
	if !models.Exchange(offered, req.RequesterCardID, &target.Cards, req.TargetCardID) {
		return nil, storage.ErrCardNotOwned
	}
	target.Mailbox = append(target.Mailbox[:idx], target.Mailbox[idx+1:]...)

	if requester.ID != target.ID {
		s.users[requester.ID] = requester
	}
	s.users[target.ID] = target

	return s.record(models.TransactionTrade, req.RequesterUserID, req.RequesterCardID, req.TargetUserID, req.TargetCardID), nil
}

func (s *Storage) SwapCards(_ context.Context, swap storage.Swap) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, okA := s.users[swap.UserA]
	b, okB := s.users[swap.UserB]
	if !okA || !okB {
		return nil, storage.ErrUserNotFound
	}

	a = cloneUser(a)
	b = cloneUser(b)
	other := &b.Cards
	if a.ID == b.ID {
		other = &a.Cards
	}
	if !models.Exchange(&a.Cards, swap.CardA, other, swap.CardB) {
		return nil, storage.ErrCardNotOwned
	}
	if a.ID != b.ID {
		s.users[b.ID] = b
	}
	s.users[a.ID] = a

	return s.record(models.TransactionDirect, swap.UserA, swap.CardA, swap.UserB, swap.CardB), nil
}

// record appends a transaction to the ledger. The caller holds the write lock.
func (s *Storage) record(kind, fromUser, fromCard, toUser, toCard string) *models.Transaction {
	tx := models.Transaction{
		ID:         uuid.NewString(),
		Kind:       kind,
		FromUserID: fromUser,
		FromCardID: fromCard,
		ToUserID:   toUser,
		ToCardID:   toCard,
		CreatedAt:  time.Now().UTC(),
	}
	s.transactions = append(s.transactions, tx)
	return &tx
}

func (s *Storage) Transactions(_ context.Context, userID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, storage.ErrUserNotFound
	}
	res := make([]models.Transaction, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		tx := s.transactions[i]
		if tx.FromUserID == userID || tx.ToUserID == userID {
			res = append(res, tx)
		}
	}
	return res, nil
}
