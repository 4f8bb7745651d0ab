// Package mongo stores users as documents that embed their collection and
// mailbox. Swaps run inside multi-document transactions, which need the
// server to run as a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Storage struct {
	client       *mongo.Client
	users        *mongo.Collection
	cards        *mongo.Collection
	attacks      *mongo.Collection
	catalogs     *mongo.Collection
	transactions *mongo.Collection
}

func New(ctx context.Context, uri, database string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	db := client.Database(database)
	s := &Storage{
		client:       client,
		users:        db.Collection("users"),
		cards:        db.Collection("cards"),
		attacks:      db.Collection("attacks"),
		catalogs:     db.Collection("catalogs"),
		transactions: db.Collection("transactions"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	const op = "storage.mongo.ensureIndexes"

	unique := func(key string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}

	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{unique("name"), unique("email")}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.catalogs.Indexes().CreateOne(ctx, unique("name")); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err := s.transactions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fromUserId", Value: 1}}},
		{Keys: bson.D{{Key: "toUserId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Stop() error {
	return s.client.Disconnect(context.Background())
}

func substring(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Storage) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.mongo.SaveUser"

	user.Cards = nonNil(user.Cards)
	user.Mailbox = nonNil(user.Mailbox)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, userConflict(err))
	}

	return nil
}

const emailIndex = "email_1"

// userConflict tells a duplicate name from a duplicate email by the unique
// index the server reports.
func userConflict(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	if duplicateIndex(err) == emailIndex {
		return storage.ErrEmailExists
	}
	return storage.ErrUserExists
}

// duplicateIndex returns the index named by a duplicate key error, e.g.
// "E11000 duplicate key error collection: tcg.users index: email_1 dup key: ...".
func duplicateIndex(err error) string {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if name := indexName(e.Message); name != "" {
				return name
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return indexName(ce.Message)
	}
	return ""
}

func indexName(msg string) string {
	_, rest, ok := strings.Cut(msg, "index: ")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, " ")
	return name
}

func (s *Storage) User(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "storage.mongo.User", bson.M{"_id": id})
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "storage.mongo.UserByEmail", bson.M{"email": email})
}

func (s *Storage) UserByName(ctx context.Context, name string) (*models.User, error) {
	return s.findUser(ctx, "storage.mongo.UserByName", bson.M{"name": name})
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

func (s *Storage) Users(ctx context.Context, name string) ([]models.User, error) {
	const op = "storage.mongo.Users"

	filter := bson.M{}
	if name != "" {
		filter["name"] = substring(name)
	}

	cur, err := s.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	users := make([]models.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.mongo.UpdateUser"

	res, err := s.users.UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{
		"name":         user.Name,
		"email":        user.Email,
		"passwordHash": user.PasswordHash,
	}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, userConflict(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	const op = "storage.mongo.DeleteUser"

	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) GrantCard(ctx context.Context, userID, cardID string) error {
	const op = "storage.mongo.GrantCard"

	if _, err := s.Card(ctx, cardID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Either bump an existing entry or push a new one; the $ne guard keeps
	// card ids unique when two grants race.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID, "cards.card": cardID},
			bson.M{"$inc": bson.M{"cards.$.quantity": 1}},
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if res.MatchedCount == 1 {
			return nil
		}

		res, err = s.users.UpdateOne(ctx,
			bson.M{"_id": userID, "cards.card": bson.M{"$ne": cardID}},
			bson.M{"$push": bson.M{"cards": models.OwnedCard{CardID: cardID, Quantity: 1}}},
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if res.MatchedCount == 1 {
			return nil
		}

		if _, err := s.User(ctx, userID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s: concurrent update of user %s", op, userID)
}

func (s *Storage) SaveAttack(ctx context.Context, attack models.Attack) error {
	const op = "storage.mongo.SaveAttack"

	attack.Energies = nonNil(attack.Energies)
	if _, err := s.attacks.InsertOne(ctx, attack); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Attack(ctx context.Context, id string) (*models.Attack, error) {
	const op = "storage.mongo.Attack"

	var attack models.Attack
	err := s.attacks.FindOne(ctx, bson.M{"_id": id}).Decode(&attack)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAttackNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &attack, nil
}

func (s *Storage) SaveCard(ctx context.Context, card models.Card) error {
	const op = "storage.mongo.SaveCard"

	card.Attacks = nonNil(card.Attacks)
	card.RetreatCost = nonNil(card.RetreatCost)
	if _, err := s.cards.InsertOne(ctx, card); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Card(ctx context.Context, id string) (*models.Card, error) {
	return s.findCard(ctx, "storage.mongo.Card", bson.M{"_id": id})
}

func (s *Storage) CardByName(ctx context.Context, name string) (*models.Card, error) {
	return s.findCard(ctx, "storage.mongo.CardByName", bson.M{"name": name})
}

func (s *Storage) findCard(ctx context.Context, op string, filter bson.M) (*models.Card, error) {
	var card models.Card
	err := s.cards.FindOne(ctx, filter).Decode(&card)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrCardNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &card, nil
}

func (s *Storage) Cards(ctx context.Context, filter models.CardFilter) ([]models.Card, error) {
	const op = "storage.mongo.Cards"

	query := bson.M{}
	if filter.Name != "" {
		query["name"] = substring(filter.Name)
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Value != nil {
		query["value"] = *filter.Value
	}
	if filter.Rarity != "" {
		query["rarity"] = filter.Rarity
	}
	if filter.IDs != nil {
		query["_id"] = bson.M{"$in": filter.IDs}
	}

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.cards.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cards := make([]models.Card, 0)
	if err := cur.All(ctx, &cards); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cards, nil
}

func (s *Storage) UpdateCard(ctx context.Context, card models.Card) error {
	const op = "storage.mongo.UpdateCard"

	card.Attacks = nonNil(card.Attacks)
	card.RetreatCost = nonNil(card.RetreatCost)
	res, err := s.cards.ReplaceOne(ctx, bson.M{"_id": card.ID}, card)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrCardNotFound)
	}

	return nil
}

func (s *Storage) DeleteCard(ctx context.Context, id string) error {
	const op = "storage.mongo.DeleteCard"

	res, err := s.cards.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrCardNotFound)
	}

	if err := s.pullCards(ctx, bson.M{"card": id}, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteCards(ctx context.Context) error {
	const op = "storage.mongo.DeleteCards"

	if _, err := s.cards.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.users.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"cards": bson.A{}}}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.catalogs.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"cards": bson.A{}}}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// pullCards drops card references from user collections and catalogs.
func (s *Storage) pullCards(ctx context.Context, owned bson.M, catalogCard any) error {
	if _, err := s.users.UpdateMany(ctx, bson.M{}, bson.M{"$pull": bson.M{"cards": owned}}); err != nil {
		return err
	}
	_, err := s.catalogs.UpdateMany(ctx, bson.M{}, bson.M{"$pull": bson.M{"cards": catalogCard}})
	return err
}

func (s *Storage) SaveCatalog(ctx context.Context, catalog models.Catalog) error {
	const op = "storage.mongo.SaveCatalog"

	catalog.Cards = nonNil(catalog.Cards)
	if _, err := s.catalogs.InsertOne(ctx, catalog); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrCatalogExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Catalog(ctx context.Context, name string) (*models.Catalog, error) {
	const op = "storage.mongo.Catalog"

	var catalog models.Catalog
	err := s.catalogs.FindOne(ctx, bson.M{"name": name}).Decode(&catalog)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrCatalogNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	catalog.Cards = nonNil(catalog.Cards)

	return &catalog, nil
}

func (s *Storage) Catalogs(ctx context.Context) ([]models.Catalog, error) {
	const op = "storage.mongo.Catalogs"

	cur, err := s.catalogs.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	catalogs := make([]models.Catalog, 0)
	if err := cur.All(ctx, &catalogs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return catalogs, nil
}

func (s *Storage) SetCatalogCards(ctx context.Context, name string, cardIDs []string) error {
	const op = "storage.mongo.SetCatalogCards"

	res, err := s.catalogs.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{"cards": nonNil(cardIDs)}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrCatalogNotFound)
	}

	return nil
}

func (s *Storage) DeleteCatalog(ctx context.Context, name string) error {
	const op = "storage.mongo.DeleteCatalog"

	res, err := s.catalogs.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrCatalogNotFound)
	}

	return nil
}

func (s *Storage) AddTradeRequest(ctx context.Context, req models.TradeRequest) error {
	const op = "storage.mongo.AddTradeRequest"

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	res, err := s.users.UpdateByID(ctx, req.TargetUserID, bson.M{"$push": bson.M{"mailbox": req}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) Mailbox(ctx context.Context, userID string) ([]models.TradeRequest, error) {
	const op = "storage.mongo.Mailbox"

	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return nonNil(user.Mailbox), nil
}

// missingRequest reports whether the user or only the request is absent.
func (s *Storage) missingRequest(ctx context.Context, userID string) error {
	if _, err := s.User(ctx, userID); err != nil {
		return err
	}
	return storage.ErrRequestNotFound
}

func (s *Storage) UpdateTradeRequest(ctx context.Context, req models.TradeRequest) error {
	const op = "storage.mongo.UpdateTradeRequest"

	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": req.TargetUserID, "mailbox._id": req.ID},
		bson.M{"$set": bson.M{
			"mailbox.$.requesterCardId": req.RequesterCardID,
			"mailbox.$.targetCardId":    req.TargetCardID,
			"mailbox.$.message":         req.Message,
		}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, s.missingRequest(ctx, req.TargetUserID))
	}

	return nil
}

func (s *Storage) DeleteTradeRequest(ctx context.Context, userID, requestID string) error {
	const op = "storage.mongo.DeleteTradeRequest"

	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "mailbox._id": requestID},
		bson.M{"$pull": bson.M{"mailbox": bson.M{"_id": requestID}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, s.missingRequest(ctx, userID))
	}

	return nil
}

// inTransaction runs fn inside a session transaction. Write conflicts with
// concurrent swaps abort the attempt and the driver retries it from a fresh read.
func (s *Storage) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (*models.Transaction, error)) (*models.Transaction, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return fn(sc)
	})
	if err != nil {
		return nil, err
	}

	return res.(*models.Transaction), nil
}

func (s *Storage) AcceptTradeRequest(ctx context.Context, userID, requestID string) (*models.Transaction, error) {
	const op = "storage.mongo.AcceptTradeRequest"

	record, err := s.inTransaction(ctx, func(sc mongo.SessionContext) (*models.Transaction, error) {
		target, err := s.User(sc, userID)
		if err != nil {
			return nil, err
		}
		idx := target.MailboxIndex(requestID)
		if idx == -1 {
			return nil, storage.ErrRequestNotFound
		}
		req := target.Mailbox[idx]

		requester, err := s.User(sc, req.RequesterUserID)
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, storage.ErrRequesterNotFound
		}
		if err != nil {
			return nil, err
		}

		offered := &requester.Cards
		if requester.ID == target.ID {
			offered = &target.Cards
		}
		if !models.Exchange(offered, req.RequesterCardID, &target.Cards, req.TargetCardID) {
			return nil, storage.ErrCardNotOwned
		}
		target.Mailbox = append(target.Mailbox[:idx], target.Mailbox[idx+1:]...)

		if requester.ID != target.ID {
			if err := s.setCards(sc, requester.ID, requester.Cards, nil); err != nil {
				return nil, err
			}
		}
		if err := s.setCards(sc, target.ID, target.Cards, target.Mailbox); err != nil {
			return nil, err
		}

		return s.record(sc, models.TransactionTrade, storage.Swap{
			UserA: req.RequesterUserID,
			CardA: req.RequesterCardID,
			UserB: req.TargetUserID,
			CardB: req.TargetCardID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return record, nil
}

func (s *Storage) SwapCards(ctx context.Context, swap storage.Swap) (*models.Transaction, error) {
	const op = "storage.mongo.SwapCards"

	record, err := s.inTransaction(ctx, func(sc mongo.SessionContext) (*models.Transaction, error) {
		a, err := s.User(sc, swap.UserA)
		if err != nil {
			return nil, err
		}
		b, err := s.User(sc, swap.UserB)
		if err != nil {
			return nil, err
		}

		other := &b.Cards
		if a.ID == b.ID {
			other = &a.Cards
		}
		if !models.Exchange(&a.Cards, swap.CardA, other, swap.CardB) {
			return nil, storage.ErrCardNotOwned
		}

		if err := s.setCards(sc, a.ID, a.Cards, nil); err != nil {
			return nil, err
		}
		if a.ID != b.ID {
			if err := s.setCards(sc, b.ID, b.Cards, nil); err != nil {
				return nil, err
			}
		}

		return s.record(sc, models.TransactionDirect, swap)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return record, nil
}

// setCards writes back a user's collection and, when given, the mailbox.
func (s *Storage) setCards(ctx context.Context, userID string, cards models.Collection, mailbox []models.TradeRequest) error {
	set := bson.M{"cards": nonNil(cards)}
	if mailbox != nil {
		set["mailbox"] = mailbox
	}
	_, err := s.users.UpdateByID(ctx, userID, bson.M{"$set": set})
	return err
}

func (s *Storage) record(ctx context.Context, kind string, swap storage.Swap) (*models.Transaction, error) {
	record := &models.Transaction{
		ID:         uuid.NewString(),
		Kind:       kind,
		FromUserID: swap.UserA,
		FromCardID: swap.CardA,
		ToUserID:   swap.UserB,
		ToCardID:   swap.CardB,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.transactions.InsertOne(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Storage) Transactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	const op = "storage.mongo.Transactions"

	if _, err := s.User(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cur, err := s.transactions.Find(ctx,
		bson.M{"$or": bson.A{bson.M{"fromUserId": userID}, bson.M{"toUserId": userID}}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	transactions := make([]models.Transaction, 0)
	if err := cur.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return transactions, nil
}
