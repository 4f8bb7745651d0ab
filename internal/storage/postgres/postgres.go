package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Storage struct {
	db *sql.DB
}

func New(dbUrl string) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

// translate maps constraint violations onto storage sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		switch pqErr.Constraint {
		case "users_name_key":
			return storage.ErrUserExists
		case "users_email_key":
			return storage.ErrEmailExists
		case "catalogs_name_key":
			return storage.ErrCatalogExists
		}
	case codeForeignKeyViolation:
		switch {
		case strings.Contains(pqErr.Constraint, "user_id"):
			return storage.ErrUserNotFound
		case strings.Contains(pqErr.Constraint, "card_id"):
			return storage.ErrCardNotFound
		}
	}
	return err
}

// likePattern builds a case-insensitive substring pattern for ILIKE.
func likePattern(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s) + "%"
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Storage) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.SaveUser"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash) VALUES ($1, $2, $3, $4)",
		user.ID, user.Name, user.Email, user.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

func (s *Storage) User(ctx context.Context, id string) (*models.User, error) {
	return s.userWhere(ctx, "storage.postgres.User", "id = $1", id)
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userWhere(ctx, "storage.postgres.UserByEmail", "email = $1", email)
}

func (s *Storage) UserByName(ctx context.Context, name string) (*models.User, error) {
	return s.userWhere(ctx, "storage.postgres.UserByName", "name = $1", name)
}

func (s *Storage) userWhere(ctx context.Context, op, cond string, arg any) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE "+cond, arg,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.loadUserDocuments(ctx, &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

// loadUserDocuments fills the collection and the mailbox of the user.
func (s *Storage) loadUserDocuments(ctx context.Context, user *models.User) error {
	cards, err := s.collection(ctx, user.ID)
	if err != nil {
		return err
	}
	user.Cards = cards

	mailbox, err := s.Mailbox(ctx, user.ID)
	if err != nil {
		return err
	}
	user.Mailbox = mailbox

	return nil
}

func (s *Storage) collection(ctx context.Context, userID string) (models.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT card_id, quantity FROM user_cards WHERE user_id = $1 ORDER BY added_at, card_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := models.Collection{}
	for rows.Next() {
		var oc models.OwnedCard
		if err := rows.Scan(&oc.CardID, &oc.Quantity); err != nil {
			return nil, err
		}
		cards = append(cards, oc)
	}

	return cards, rows.Err()
}

func (s *Storage) Users(ctx context.Context, name string) ([]models.User, error) {
	const op = "storage.postgres.Users"

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE name ILIKE $1 ORDER BY created_at, id",
		likePattern(name),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := range users {
		if err := s.loadUserDocuments(ctx, &users[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return users, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.UpdateUser"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET name = $2, email = $3, password_hash = $4 WHERE id = $1",
		user.ID, user.Name, user.Email, user.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return affectedOne(op, res, storage.ErrUserNotFound)
}

func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteUser"

	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res, storage.ErrUserNotFound)
}

func affectedOne(op string, res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}

func (s *Storage) GrantCard(ctx context.Context, userID, cardID string) error {
	const op = "storage.postgres.GrantCard"

	if err := give(ctx, s.db, userID, cardID); err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// give adds one copy of the card to the user's collection.
func give(ctx context.Context, db execer, userID, cardID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_cards (user_id, card_id, quantity) VALUES ($1, $2, 1)
		ON CONFLICT (user_id, card_id) DO UPDATE SET quantity = user_cards.quantity + 1`,
		userID, cardID,
	)
	return err
}

// take removes one copy of the card from the user's collection. The row
// lock taken by the write serializes concurrent takes of the same entry.
func take(ctx context.Context, db execer, userID, cardID string) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM user_cards WHERE user_id = $1 AND card_id = $2 AND quantity = 1", userID, cardID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	res, err = db.ExecContext(ctx,
		"UPDATE user_cards SET quantity = quantity - 1 WHERE user_id = $1 AND card_id = $2 AND quantity > 1", userID, cardID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrCardNotOwned
	}
	return nil
}

func (s *Storage) SaveAttack(ctx context.Context, attack models.Attack) error {
	const op = "storage.postgres.SaveAttack"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO attacks (id, name, energies, damage, effect) VALUES ($1, $2, $3, $4, $5)",
		attack.ID, attack.Name, pq.Array(attack.Energies), attack.Damage, attack.Effect,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Attack(ctx context.Context, id string) (*models.Attack, error) {
	const op = "storage.postgres.Attack"

	var attack models.Attack
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, energies, damage, effect FROM attacks WHERE id = $1", id,
	).Scan(&attack.ID, &attack.Name, pq.Array(&attack.Energies), &attack.Damage, &attack.Effect)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAttackNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &attack, nil
}

const cardColumns = `id, name, n_pokedex, type, weakness, hp, attacks, retreat_cost,
	phase, description, is_holographic, value, rarity`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (models.Card, error) {
	var c models.Card
	err := row.Scan(&c.ID, &c.Name, &c.NPokeDex, &c.Type, &c.Weakness, &c.HP,
		pq.Array(&c.Attacks), pq.Array(&c.RetreatCost),
		&c.Phase, &c.Description, &c.IsHolographic, &c.Value, &c.Rarity)
	return c, err
}

func (s *Storage) SaveCard(ctx context.Context, card models.Card) error {
	const op = "storage.postgres.SaveCard"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cards ("+cardColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)",
		card.ID, card.Name, card.NPokeDex, card.Type, card.Weakness, card.HP,
		pq.Array(card.Attacks), pq.Array(card.RetreatCost),
		card.Phase, card.Description, card.IsHolographic, card.Value, card.Rarity,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Card(ctx context.Context, id string) (*models.Card, error) {
	return s.cardWhere(ctx, "storage.postgres.Card", "id = $1", id)
}

func (s *Storage) CardByName(ctx context.Context, name string) (*models.Card, error) {
	return s.cardWhere(ctx, "storage.postgres.CardByName", "name = $1", name)
}

func (s *Storage) cardWhere(ctx context.Context, op, cond string, arg any) (*models.Card, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx, "SELECT "+cardColumns+" FROM cards WHERE "+cond+" LIMIT 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrCardNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &card, nil
}

func (s *Storage) Cards(ctx context.Context, filter models.CardFilter) ([]models.Card, error) {
	const op = "storage.postgres.Cards"

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Name != "" {
		conds = append(conds, "name ILIKE "+arg(likePattern(filter.Name)))
	}
	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	if filter.Value != nil {
		conds = append(conds, "value = "+arg(*filter.Value))
	}
	if filter.Rarity != "" {
		conds = append(conds, "rarity = "+arg(filter.Rarity))
	}
	if filter.IDs != nil {
		conds = append(conds, "id = ANY("+arg(pq.Array(filter.IDs))+"::uuid[])")
	}

	query := "SELECT " + cardColumns + " FROM cards"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	cards := make([]models.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cards, nil
}

func (s *Storage) UpdateCard(ctx context.Context, card models.Card) error {
	const op = "storage.postgres.UpdateCard"

	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET name = $2, n_pokedex = $3, type = $4, weakness = $5, hp = $6, attacks = $7,
			retreat_cost = $8, phase = $9, description = $10, is_holographic = $11, value = $12, rarity = $13
		WHERE id = $1`,
		card.ID, card.Name, card.NPokeDex, card.Type, card.Weakness, card.HP,
		pq.Array(card.Attacks), pq.Array(card.RetreatCost),
		card.Phase, card.Description, card.IsHolographic, card.Value, card.Rarity,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res, storage.ErrCardNotFound)
}

// DeleteCard removes the card. Collection entries go with it through the
// foreign key, catalog references are pulled in the same transaction.
func (s *Storage) DeleteCard(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteCard"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM cards WHERE id = $1", id)
		if err != nil {
			return err
		}
		if err := affectedOne(op, res, storage.ErrCardNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE catalogs SET cards = array_remove(cards, $1::uuid)", id)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrCardNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteCards(ctx context.Context) error {
	const op = "storage.postgres.DeleteCards"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cards"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "UPDATE catalogs SET cards = '{}'")
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SaveCatalog(ctx context.Context, catalog models.Catalog) error {
	const op = "storage.postgres.SaveCatalog"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO catalogs (id, name, cards) VALUES ($1, $2, $3)",
		catalog.ID, catalog.Name, pq.Array(nonNil(catalog.Cards)),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (s *Storage) Catalog(ctx context.Context, name string) (*models.Catalog, error) {
	const op = "storage.postgres.Catalog"

	var catalog models.Catalog
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, cards FROM catalogs WHERE name = $1", name,
	).Scan(&catalog.ID, &catalog.Name, pq.Array(&catalog.Cards))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrCatalogNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	catalog.Cards = nonNil(catalog.Cards)

	return &catalog, nil
}

func (s *Storage) Catalogs(ctx context.Context) ([]models.Catalog, error) {
	const op = "storage.postgres.Catalogs"

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, cards FROM catalogs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	catalogs := make([]models.Catalog, 0)
	for rows.Next() {
		var catalog models.Catalog
		if err := rows.Scan(&catalog.ID, &catalog.Name, pq.Array(&catalog.Cards)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		catalog.Cards = nonNil(catalog.Cards)
		catalogs = append(catalogs, catalog)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return catalogs, nil
}

func (s *Storage) SetCatalogCards(ctx context.Context, name string, cardIDs []string) error {
	const op = "storage.postgres.SetCatalogCards"

	res, err := s.db.ExecContext(ctx, "UPDATE catalogs SET cards = $2 WHERE name = $1", name, pq.Array(nonNil(cardIDs)))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res, storage.ErrCatalogNotFound)
}

func (s *Storage) DeleteCatalog(ctx context.Context, name string) error {
	const op = "storage.postgres.DeleteCatalog"

	res, err := s.db.ExecContext(ctx, "DELETE FROM catalogs WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res, storage.ErrCatalogNotFound)
}

func (s *Storage) AddTradeRequest(ctx context.Context, req models.TradeRequest) error {
	const op = "storage.postgres.AddTradeRequest"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_requests (id, target_user_id, requester_user_id, requester_card_id, target_card_id, message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.TargetUserID, req.RequesterUserID, req.RequesterCardID, req.TargetCardID, req.Message,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

func (s *Storage) userExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

func (s *Storage) Mailbox(ctx context.Context, userID string) ([]models.TradeRequest, error) {
	const op = "storage.postgres.Mailbox"

	exists, err := s.userExists(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requester_user_id, requester_card_id, target_user_id, target_card_id, message, created_at
		FROM trade_requests WHERE target_user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	mailbox := make([]models.TradeRequest, 0)
	for rows.Next() {
		var req models.TradeRequest
		if err := rows.Scan(&req.ID, &req.RequesterUserID, &req.RequesterCardID,
			&req.TargetUserID, &req.TargetCardID, &req.Message, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		mailbox = append(mailbox, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return mailbox, nil
}

func (s *Storage) UpdateTradeRequest(ctx context.Context, req models.TradeRequest) error {
	const op = "storage.postgres.UpdateTradeRequest"

	exists, err := s.userExists(ctx, s.db, req.TargetUserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE trade_requests SET requester_card_id = $3, target_card_id = $4, message = $5
		WHERE id = $1 AND target_user_id = $2`,
		req.ID, req.TargetUserID, req.RequesterCardID, req.TargetCardID, req.Message,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res, storage.ErrRequestNotFound)
}

func (s *Storage) DeleteTradeRequest(ctx context.Context, userID, requestID string) error {
	const op = "storage.postgres.DeleteTradeRequest"

	exists, err := s.userExists(ctx, s.db, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM trade_requests WHERE id = $1 AND target_user_id = $2", requestID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res, storage.ErrRequestNotFound)
}

// AcceptTradeRequest claims the request and swaps one copy of each card
// inside a single transaction. Any failure rolls every write back.
func (s *Storage) AcceptTradeRequest(ctx context.Context, userID, requestID string) (*models.Transaction, error) {
	const op = "storage.postgres.AcceptTradeRequest"

	var record *models.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.userExists(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrUserNotFound
		}

		req := models.TradeRequest{ID: requestID, TargetUserID: userID}
		err = tx.QueryRowContext(ctx, `
			DELETE FROM trade_requests WHERE id = $1 AND target_user_id = $2
			RETURNING requester_user_id, requester_card_id, target_card_id`,
			requestID, userID,
		).Scan(&req.RequesterUserID, &req.RequesterCardID, &req.TargetCardID)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrRequestNotFound
		}
		if err != nil {
			return err
		}

		exists, err = s.userExists(ctx, tx, req.RequesterUserID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrRequesterNotFound
		}

		record, err = exchange(ctx, tx, models.TransactionTrade, storage.Swap{
			UserA: req.RequesterUserID,
			CardA: req.RequesterCardID,
			UserB: req.TargetUserID,
			CardB: req.TargetCardID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return record, nil
}

func (s *Storage) SwapCards(ctx context.Context, swap storage.Swap) (*models.Transaction, error) {
	const op = "storage.postgres.SwapCards"

	var record *models.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{swap.UserA, swap.UserB} {
			exists, err := s.userExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !exists {
				return storage.ErrUserNotFound
			}
		}

		var err error
		record, err = exchange(ctx, tx, models.TransactionDirect, swap)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return record, nil
}

// exchange moves CardA from UserA to UserB and CardB the other way, then
// appends the ledger record. Both takes happen before any give so a missing
// card aborts without partial writes.
func exchange(ctx context.Context, tx *sql.Tx, kind string, swap storage.Swap) (*models.Transaction, error) {
	if err := take(ctx, tx, swap.UserA, swap.CardA); err != nil {
		return nil, err
	}
	if err := take(ctx, tx, swap.UserB, swap.CardB); err != nil {
		return nil, err
	}
	if err := give(ctx, tx, swap.UserB, swap.CardA); err != nil {
		return nil, translate(err)
	}
	if err := give(ctx, tx, swap.UserA, swap.CardB); err != nil {
		return nil, translate(err)
	}

	record := models.Transaction{
		ID:         uuid.NewString(),
		Kind:       kind,
		FromUserID: swap.UserA,
		FromCardID: swap.CardA,
		ToUserID:   swap.UserB,
		ToCardID:   swap.CardB,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, kind, from_user_id, from_card_id, to_user_id, to_card_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.Kind, record.FromUserID, record.FromCardID, record.ToUserID, record.ToCardID, record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *Storage) Transactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	const op = "storage.postgres.Transactions"

	exists, err := s.userExists(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, from_user_id, from_card_id, to_user_id, to_card_id, created_at
		FROM transactions WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Kind, &t.FromUserID, &t.FromCardID, &t.ToUserID, &t.ToCardID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return transactions, nil
}
