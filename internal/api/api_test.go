package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/config"
	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/lib/jwt"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage/memory"
)

const (
	testSecret   = "secret"
	testPassword = "Str0ngP@ssw0rd!"
)

// ========================================================
// Helpers
// ========================================================

func newTestServer(t *testing.T) (*APIServer, *memory.Storage) {
	t.Helper()

	store := memory.New()
	cfg := &config.Config{
		ApiHost:     "localhost",
		ApiPort:     8080,
		TokenTTL:    time.Hour,
		CorsOrigins: []string{"*"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(cfg, logger, store, []byte(testSecret)), store
}

func do(t *testing.T, s *APIServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func expectMsg(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp message
	decodeBody(t, rr, &resp)
	if resp.Msg != want {
		t.Errorf("expected message %q, got %q", want, resp.Msg)
	}
}

// register signs a user up and in and returns the stored user with a token.
func register(t *testing.T, s *APIServer, store *memory.Storage, name string) (*models.User, string) {
	t.Helper()

	email := name + "@example.com"
	rr := do(t, s, "POST", "/auth/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusCreated)

	rr = do(t, s, "POST", "/auth/signin", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rr, &resp)

	user, err := store.UserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("failed to load user %s: %v", name, err)
	}
	return user, resp.Token
}

func cardBody(name string, attacks ...map[string]any) map[string]any {
	if attacks == nil {
		attacks = []map[string]any{}
	}
	return map[string]any{
		"name":          name,
		"nPokeDex":      25,
		"type":          "Lightning",
		"weakness":      "Fighting",
		"hp":            60,
		"attacks":       attacks,
		"retreatCost":   []string{"Colorless"},
		"phase":         "Basic",
		"description":   "test card",
		"isHolographic": false,
		"value":         10,
		"rarity":        "Common",
	}
}

func attackBody(name string, damage int) map[string]any {
	return map[string]any{
		"name":     name,
		"energies": []string{"Lightning", "Colorless"},
		"damage":   damage,
		"effect":   "Flip a coin.",
	}
}

// grant creates a card owned by the named user and returns its id.
func grant(t *testing.T, s *APIServer, token, owner, cardName string) string {
	t.Helper()

	rr := do(t, s, "POST", "/cards/"+owner, token, cardBody(cardName))
	expectStatus(t, rr, http.StatusCreated)

	var card models.Card
	decodeBody(t, rr, &card)
	return card.ID
}

func quantity(t *testing.T, store *memory.Storage, userID, cardID string) int {
	t.Helper()
	u, err := store.User(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	return u.Cards.Quantity(cardID)
}

// ========================================================
// Tests for Auth Handlers
// ========================================================

func TestSignupAndSignin(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, "POST", "/auth/signup", "", map[string]string{
		"name":     "T",
		"email":    "t@e.com",
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusCreated)
	if rr.Body.String() != "User created" {
		t.Errorf("expected body 'User created', got %q", rr.Body.String())
	}

	rr = do(t, s, "POST", "/auth/signin", "", map[string]string{
		"email":    "t@e.com",
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := jwt.ParseToken(resp.Token, testSecret)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims["email"] != "t@e.com" {
		t.Errorf("expected email claim 't@e.com', got %v", claims["email"])
	}
}

func TestSignupDuplicates(t *testing.T) {
	s, store := newTestServer(t)
	original, _ := register(t, s, store, "ash")

	rr := do(t, s, "POST", "/auth/signup", "", map[string]string{
		"name":     "gary",
		"email":    "ash@example.com",
		"password": "An0ther#Secret",
	})
	expectStatus(t, rr, http.StatusBadRequest)
	expectMsg(t, rr, "Email is already registered")

	rr = do(t, s, "POST", "/auth/signup", "", map[string]string{
		"name":     "ash",
		"email":    "other@example.com",
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusBadRequest)
	expectMsg(t, rr, "User is already registered")

	stored, err := store.UserByEmail(context.Background(), "ash@example.com")
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if stored.ID != original.ID || stored.Name != "ash" || stored.PasswordHash != original.PasswordHash {
		t.Errorf("existing user changed: %+v", stored)
	}

	rr = do(t, s, "POST", "/auth/signin", "", map[string]string{
		"email":    "ash@example.com",
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusOK)
}

func TestSignupValidation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing name", map[string]string{"email": "a@b.com", "password": testPassword}},
		{"bad email", map[string]string{"name": "a", "email": "not-an-email", "password": testPassword}},
		{"weak password", map[string]string{"name": "a", "email": "a@b.com", "password": "password"}},
		{"long name", map[string]string{"name": "abcdefghijklmnopqrstuvwxyz", "email": "a@b.com", "password": testPassword}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, s, "POST", "/auth/signup", "", tc.body)
			expectStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestSigninFailures(t *testing.T) {
	s, store := newTestServer(t)
	register(t, s, store, "misty")

	rr := do(t, s, "POST", "/auth/signin", "", map[string]string{
		"email":    "misty@example.com",
		"password": "Wr0ng#Password",
	})
	expectStatus(t, rr, http.StatusBadRequest)
	expectMsg(t, rr, "Invalid credentials")

	rr = do(t, s, "POST", "/auth/signin", "", map[string]string{
		"email":    "nobody@example.com",
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusBadRequest)
	expectMsg(t, rr, "Invalid credentials")

	rr = do(t, s, "POST", "/auth/signin", "", map[string]string{"email": "misty@example.com"})
	expectStatus(t, rr, http.StatusBadRequest)
	expectMsg(t, rr, "Email and password are required")
}

func TestAuthenticate(t *testing.T) {
	s, store := newTestServer(t)
	user, _ := register(t, s, store, "brock")

	rr := do(t, s, "POST", "/cards", "", cardBody("Onix"))
	expectStatus(t, rr, http.StatusUnauthorized)
	expectMsg(t, rr, "Token is missing")

	rr = do(t, s, "POST", "/cards", "not-a-token", cardBody("Onix"))
	expectStatus(t, rr, http.StatusForbidden)
	expectMsg(t, rr, "Invalid token")

	expired, err := jwt.NewToken(user, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr = do(t, s, "POST", "/cards", expired, cardBody("Onix"))
	expectStatus(t, rr, http.StatusForbidden)

	foreign, err := jwt.NewToken(user, "another-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr = do(t, s, "POST", "/cards", foreign, cardBody("Onix"))
	expectStatus(t, rr, http.StatusForbidden)

	for _, path := range []string{"/cards", "/cards/Onix", "/attacks/1b4e28ba-2fa1-11d2-883f-0016d3cca427"} {
		rr = do(t, s, "GET", path, "", nil)
		expectStatus(t, rr, http.StatusUnauthorized)
	}
}

// ========================================================
// Tests for Card Handlers
// ========================================================

func TestCreateCardWithAttacks(t *testing.T) {
	s, store := newTestServer(t)
	_, token := register(t, s, store, "red")

	attacks := []map[string]any{attackBody("Thunder Jolt", 30), attackBody("Gnaw", 10)}
	rr := do(t, s, "POST", "/cards", token, cardBody("Pikachu", attacks...))
	expectStatus(t, rr, http.StatusCreated)

	var created models.Card
	decodeBody(t, rr, &created)

	rr = do(t, s, "GET", "/cards/"+created.ID, token, nil)
	expectStatus(t, rr, http.StatusOK)

	var card models.Card
	decodeBody(t, rr, &card)
	if len(card.Attacks) != len(attacks) {
		t.Fatalf("expected %d attacks, got %d", len(attacks), len(card.Attacks))
	}

	for i, id := range card.Attacks {
		rr = do(t, s, "GET", "/attacks/"+id, token, nil)
		expectStatus(t, rr, http.StatusOK)

		var resp struct {
			Attack models.Attack `json:"attack"`
		}
		decodeBody(t, rr, &resp)
		if resp.Attack.Name != attacks[i]["name"] || resp.Attack.Damage != attacks[i]["damage"] {
			t.Errorf("attack %d does not match payload: %+v", i, resp.Attack)
		}
	}

	rr = do(t, s, "GET", "/cards/Pikachu", token, nil)
	expectStatus(t, rr, http.StatusOK)
}

func TestCreateCardValidation(t *testing.T) {
	s, store := newTestServer(t)
	_, token := register(t, s, store, "blue")

	body := cardBody("Eevee")
	body["type"] = "Plasma"
	rr := do(t, s, "POST", "/cards", token, body)
	expectStatus(t, rr, http.StatusBadRequest)

	body = cardBody("Eevee")
	delete(body, "value")
	rr = do(t, s, "POST", "/cards", token, body)
	expectStatus(t, rr, http.StatusBadRequest)

	body = cardBody("Eevee", map[string]any{"name": "Tackle", "energies": []string{}, "damage": 10})
	rr = do(t, s, "POST", "/cards", token, body)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestListCardsFilter(t *testing.T) {
	s, store := newTestServer(t)
	_, token := register(t, s, store, "oak")

	for _, name := range []string{"Charmander", "Charizard", "Squirtle"} {
		rr := do(t, s, "POST", "/cards", token, cardBody(name))
		expectStatus(t, rr, http.StatusCreated)
	}

	rr := do(t, s, "GET", "/cards?name=CHAR&value=10", token, nil)
	expectStatus(t, rr, http.StatusOK)

	var cards []models.Card
	decodeBody(t, rr, &cards)
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}

	rr = do(t, s, "GET", "/cards?rarity=Rare", token, nil)
	expectStatus(t, rr, http.StatusOK)
	decodeBody(t, rr, &cards)
	if len(cards) != 0 {
		t.Errorf("expected no rare cards, got %d", len(cards))
	}

	rr = do(t, s, "GET", "/cards?value=ten", token, nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestUpdateCard(t *testing.T) {
	s, store := newTestServer(t)
	_, token := register(t, s, store, "elm")

	rr := do(t, s, "POST", "/cards", token, cardBody("Cyndaquil"))
	expectStatus(t, rr, http.StatusCreated)
	var card models.Card
	decodeBody(t, rr, &card)

	body := cardBody("Quilava", attackBody("Flame Wheel", 40))
	rr = do(t, s, "PUT", "/cards/"+card.ID, token, body)
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Card models.Card `json:"Card"`
	}
	decodeBody(t, rr, &resp)
	if resp.Card.ID != card.ID || resp.Card.Name != "Quilava" || len(resp.Card.Attacks) != 1 {
		t.Errorf("unexpected updated card: %+v", resp.Card)
	}

	rr = do(t, s, "PUT", "/cards/1b4e28ba-2fa1-11d2-883f-0016d3cca427", token, body)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestDeleteMissingCard(t *testing.T) {
	s, store := newTestServer(t)
	_, token := register(t, s, store, "gary")

	for i := 0; i < 2; i++ {
		rr := do(t, s, "DELETE", "/cards/1b4e28ba-2fa1-11d2-883f-0016d3cca427", token, nil)
		expectStatus(t, rr, http.StatusNotFound)
		expectMsg(t, rr, "card not found")
	}

	rr := do(t, s, "DELETE", "/cards/not-an-id", token, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestDeleteCardPurgesOwners(t *testing.T) {
	s, store := newTestServer(t)
	user, token := register(t, s, store, "jessie")
	cardID := grant(t, s, token, "jessie", "Ekans")

	rr := do(t, s, "DELETE", "/cards/"+cardID, token, nil)
	expectStatus(t, rr, http.StatusOK)

	if q := quantity(t, store, user.ID, cardID); q != 0 {
		t.Errorf("expected deleted card to leave the collection, got quantity %d", q)
	}

	rr = do(t, s, "DELETE", "/cards/"+cardID, token, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

// ========================================================
// Tests for User Handlers
// ========================================================

func TestCardScenario(t *testing.T) {
	s, store := newTestServer(t)
	user, token := register(t, s, store, "T")

	rr := do(t, s, "POST", "/cards/T", token, cardBody("Pikachu", attackBody("Thunder Jolt", 30)))
	expectStatus(t, rr, http.StatusCreated)

	var created models.Card
	decodeBody(t, rr, &created)
	if created.Name != "Pikachu" {
		t.Errorf("expected created card Pikachu, got %q", created.Name)
	}

	rr = do(t, s, "GET", "/users/"+user.ID+"/cards", "", nil)
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Cards []struct {
			Card     models.Card `json:"card"`
			Quantity int         `json:"quantity"`
		} `json:"cards"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(resp.Cards))
	}
	if resp.Cards[0].Card.Name != "Pikachu" || resp.Cards[0].Quantity != 1 {
		t.Errorf("unexpected owned card: %+v", resp.Cards[0])
	}

	rr = do(t, s, "POST", "/cards/nobody", token, cardBody("Pikachu"))
	expectStatus(t, rr, http.StatusNotFound)
}

func TestUsersDirectory(t *testing.T) {
	s, store := newTestServer(t)
	ash, _ := register(t, s, store, "ash")
	register(t, s, store, "ashley")
	register(t, s, store, "brock")

	rr := do(t, s, "GET", "/users/search?name=ASH", "", nil)
	expectStatus(t, rr, http.StatusOK)
	var users []models.User
	decodeBody(t, rr, &users)
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}

	rr = do(t, s, "GET", "/users?email=ash@example.com", "", nil)
	expectStatus(t, rr, http.StatusOK)
	var one models.User
	decodeBody(t, rr, &one)
	if one.ID != ash.ID {
		t.Errorf("expected user %s, got %s", ash.ID, one.ID)
	}

	rr = do(t, s, "GET", "/users/"+ash.ID, "", nil)
	expectStatus(t, rr, http.StatusOK)
	if bytes.Contains(rr.Body.Bytes(), []byte(ash.PasswordHash)) {
		t.Error("password hash leaked in response")
	}

	rr = do(t, s, "GET", "/users/1b4e28ba-2fa1-11d2-883f-0016d3cca427", "", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestUpdateUser(t *testing.T) {
	s, store := newTestServer(t)
	ash, ashToken := register(t, s, store, "ash")
	_, brockToken := register(t, s, store, "brock")

	rr := do(t, s, "PUT", "/users/"+ash.ID, brockToken, map[string]string{"name": "hacked"})
	expectStatus(t, rr, http.StatusForbidden)

	rr = do(t, s, "PUT", "/users/"+ash.ID, ashToken, map[string]string{"name": "brock"})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, s, "PUT", "/users/"+ash.ID, ashToken, map[string]string{"name": "ketchum"})
	expectStatus(t, rr, http.StatusOK)

	stored, err := store.User(context.Background(), ash.ID)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if stored.Name != "ketchum" {
		t.Errorf("expected name ketchum, got %q", stored.Name)
	}
}

func TestDeleteUser(t *testing.T) {
	s, store := newTestServer(t)
	ash, token := register(t, s, store, "ash")
	misty, mistyToken := register(t, s, store, "misty")

	rr := do(t, s, "DELETE", "/users/"+misty.ID, token, nil)
	expectStatus(t, rr, http.StatusForbidden)

	rr = do(t, s, "DELETE", "/users/"+misty.ID, mistyToken, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, s, "GET", "/users/"+misty.ID, "", nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, s, "GET", "/users/"+ash.ID, "", nil)
	expectStatus(t, rr, http.StatusOK)
}

// ========================================================
// Tests for Mailbox Handlers
// ========================================================

type tradeFixture struct {
	a, b           *models.User
	aToken, bToken string
	x, y           string
	requestID      string
}

// newTrade gives A card X and B card Y and has A offer X for Y.
func newTrade(t *testing.T, s *APIServer, store *memory.Storage) tradeFixture {
	t.Helper()

	var f tradeFixture
	f.a, f.aToken = register(t, s, store, "alice")
	f.b, f.bToken = register(t, s, store, "bob")
	f.x = grant(t, s, f.aToken, "alice", "Bulbasaur")
	f.y = grant(t, s, f.bToken, "bob", "Squirtle")

	rr := do(t, s, "POST", "/users/"+f.b.ID+"/mailbox", f.aToken, map[string]string{
		"requesterUserId": f.a.ID,
		"requesterCardId": f.x,
		"targetCardId":    f.y,
	})
	expectStatus(t, rr, http.StatusCreated)

	var resp struct {
		Mailbox []models.TradeRequest `json:"mailbox"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Mailbox) != 1 {
		t.Fatalf("expected 1 request in mailbox, got %d", len(resp.Mailbox))
	}
	if resp.Mailbox[0].Message == "" {
		t.Error("expected a default message")
	}
	f.requestID = resp.Mailbox[0].ID

	return f
}

func mailboxSize(t *testing.T, s *APIServer, userID string) int {
	t.Helper()
	rr := do(t, s, "GET", "/users/"+userID+"/mailbox", "", nil)
	expectStatus(t, rr, http.StatusOK)
	var resp struct {
		Mailbox []models.TradeRequest `json:"mailbox"`
	}
	decodeBody(t, rr, &resp)
	return len(resp.Mailbox)
}

func TestTradeAccept(t *testing.T) {
	s, store := newTestServer(t)
	f := newTrade(t, s, store)

	rr := do(t, s, "POST", "/users/"+f.b.ID+"/mailbox/"+f.requestID+"/accept", f.bToken, nil)
	expectStatus(t, rr, http.StatusOK)

	if quantity(t, store, f.a.ID, f.y) != 1 || quantity(t, store, f.a.ID, f.x) != 0 {
		t.Error("expected alice to own Y and not X")
	}
	if quantity(t, store, f.b.ID, f.x) != 1 || quantity(t, store, f.b.ID, f.y) != 0 {
		t.Error("expected bob to own X and not Y")
	}
	if n := mailboxSize(t, s, f.b.ID); n != 0 {
		t.Errorf("expected empty mailbox, got %d", n)
	}

	rr = do(t, s, "GET", "/users/"+f.a.ID+"/transactions", "", nil)
	expectStatus(t, rr, http.StatusOK)
	var txs []models.Transaction
	decodeBody(t, rr, &txs)
	if len(txs) != 1 || txs[0].Kind != models.TransactionTrade || txs[0].FromCardID != f.x {
		t.Errorf("unexpected transactions: %+v", txs)
	}

	rr = do(t, s, "POST", "/users/"+f.b.ID+"/mailbox/"+f.requestID+"/accept", f.bToken, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestTradeReject(t *testing.T) {
	s, store := newTestServer(t)
	f := newTrade(t, s, store)

	rr := do(t, s, "POST", "/users/"+f.b.ID+"/mailbox/"+f.requestID+"/reject", f.bToken, nil)
	expectStatus(t, rr, http.StatusOK)

	if quantity(t, store, f.a.ID, f.x) != 1 || quantity(t, store, f.b.ID, f.y) != 1 {
		t.Error("expected collections to be unchanged")
	}
	if n := mailboxSize(t, s, f.b.ID); n != 0 {
		t.Errorf("expected empty mailbox, got %d", n)
	}
}

func TestTradeAcceptCardGone(t *testing.T) {
	s, store := newTestServer(t)
	f := newTrade(t, s, store)

	rr := do(t, s, "DELETE", "/cards/"+f.x, f.aToken, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, s, "POST", "/users/"+f.b.ID+"/mailbox/"+f.requestID+"/accept", f.bToken, nil)
	expectStatus(t, rr, http.StatusNotFound)
	expectMsg(t, rr, "one or both cards were not found")

	if quantity(t, store, f.b.ID, f.y) != 1 || quantity(t, store, f.a.ID, f.y) != 0 {
		t.Error("expected collections to be unchanged")
	}
	if n := mailboxSize(t, s, f.b.ID); n != 1 {
		t.Errorf("expected the request to stay in the mailbox, got %d", n)
	}
}

func TestTradePermissions(t *testing.T) {
	s, store := newTestServer(t)
	f := newTrade(t, s, store)

	rr := do(t, s, "POST", "/users/"+f.b.ID+"/mailbox/"+f.requestID+"/accept", f.aToken, nil)
	expectStatus(t, rr, http.StatusForbidden)

	rr = do(t, s, "POST", "/users/"+f.b.ID+"/mailbox/"+f.requestID+"/reject", f.aToken, nil)
	expectStatus(t, rr, http.StatusForbidden)

	// bob may not send offers in alice's name
	rr = do(t, s, "POST", "/users/"+f.b.ID+"/mailbox", f.bToken, map[string]string{
		"requesterUserId": f.a.ID,
		"requesterCardId": f.x,
		"targetCardId":    f.y,
	})
	expectStatus(t, rr, http.StatusForbidden)

	rr = do(t, s, "POST", "/users/"+f.a.ID+"/mailbox", f.aToken, map[string]string{
		"requesterUserId": f.a.ID,
		"requesterCardId": f.x,
		"targetCardId":    f.x,
	})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, s, "POST", "/users/1b4e28ba-2fa1-11d2-883f-0016d3cca427/mailbox", f.aToken, map[string]string{
		"requesterUserId": f.a.ID,
		"requesterCardId": f.x,
		"targetCardId":    f.y,
	})
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, s, "GET", "/users/1b4e28ba-2fa1-11d2-883f-0016d3cca427/mailbox", "", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestTradeUpdateAndDelete(t *testing.T) {
	s, store := newTestServer(t)
	f := newTrade(t, s, store)
	z := grant(t, s, f.aToken, "alice", "Oddish")

	path := "/users/" + f.b.ID + "/mailbox/" + f.requestID
	rr := do(t, s, "PUT", path, f.aToken, map[string]string{
		"requesterCardId": z,
		"targetCardId":    f.y,
		"message":         "Oddish for Squirtle?",
	})
	expectStatus(t, rr, http.StatusOK)

	mailbox, err := store.Mailbox(context.Background(), f.b.ID)
	if err != nil {
		t.Fatalf("failed to load mailbox: %v", err)
	}
	if len(mailbox) != 1 || mailbox[0].RequesterCardID != z || mailbox[0].Message != "Oddish for Squirtle?" {
		t.Errorf("unexpected mailbox after update: %+v", mailbox)
	}

	rr = do(t, s, "DELETE", path, f.aToken, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, s, "DELETE", path, f.aToken, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestTradeTargetCannotRewriteOffer(t *testing.T) {
	s, store := newTestServer(t)
	f := newTrade(t, s, store)
	mewtwo := grant(t, s, f.aToken, "alice", "Mewtwo")

	path := "/users/" + f.b.ID + "/mailbox/" + f.requestID
	rr := do(t, s, "PUT", path, f.bToken, map[string]string{
		"requesterCardId": mewtwo,
		"targetCardId":    f.y,
	})
	expectStatus(t, rr, http.StatusForbidden)

	rr = do(t, s, "POST", path+"/accept", f.bToken, nil)
	expectStatus(t, rr, http.StatusOK)

	if quantity(t, store, f.a.ID, mewtwo) != 1 || quantity(t, store, f.b.ID, mewtwo) != 0 {
		t.Error("expected alice to keep the card she never offered")
	}
	if quantity(t, store, f.a.ID, f.x) != 0 || quantity(t, store, f.b.ID, f.x) != 1 {
		t.Error("expected the offered card to move to bob")
	}
}

// ========================================================
// Tests for Direct Transactions
// ========================================================

func TestDirectTransaction(t *testing.T) {
	s, store := newTestServer(t)
	a, aToken := register(t, s, store, "alice")
	b, bToken := register(t, s, store, "bob")
	x := grant(t, s, aToken, "alice", "Vulpix")
	y := grant(t, s, bToken, "bob", "Psyduck")

	rr := do(t, s, "POST", "/transactions", aToken, map[string]string{
		"userId1": a.ID,
		"userId2": b.ID,
		"cardId1": x,
		"cardId2": y,
	})
	expectStatus(t, rr, http.StatusOK)

	if quantity(t, store, a.ID, y) != 1 || quantity(t, store, b.ID, x) != 1 {
		t.Error("expected the cards to be swapped")
	}

	rr = do(t, s, "POST", "/transactions", aToken, map[string]string{
		"userId1": a.ID,
		"userId2": b.ID,
		"cardId1": x,
		"cardId2": y,
	})
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, s, "POST", "/transactions", aToken, map[string]string{
		"userId1": a.ID,
		"userId2": "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		"cardId1": y,
		"cardId2": x,
	})
	expectStatus(t, rr, http.StatusNotFound)
}

// ========================================================
// Tests for Catalog Handlers
// ========================================================

func TestCatalogs(t *testing.T) {
	s, store := newTestServer(t)
	_, token := register(t, s, store, "oak")

	body := map[string]any{
		"name":  "Starters",
		"cards": []map[string]any{cardBody("Bulbasaur"), cardBody("Charmander")},
	}
	rr := do(t, s, "POST", "/catalogs", token, body)
	expectStatus(t, rr, http.StatusCreated)

	rr = do(t, s, "POST", "/catalogs", token, body)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, s, "GET", "/catalogs/Starters/cards", "", nil)
	expectStatus(t, rr, http.StatusOK)
	var cards []models.Card
	decodeBody(t, rr, &cards)
	if len(cards) != 2 || cards[0].Name != "Bulbasaur" || cards[1].Name != "Charmander" {
		t.Fatalf("unexpected catalog cards: %+v", cards)
	}

	rr = do(t, s, "GET", "/catalogs/Starters/search?name=bulb", "", nil)
	expectStatus(t, rr, http.StatusOK)
	decodeBody(t, rr, &cards)
	if len(cards) != 1 {
		t.Errorf("expected 1 match, got %d", len(cards))
	}

	rr = do(t, s, "GET", "/catalogs/Starters/search?name=mew", "", nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, s, "GET", "/catalogs/Missing/search?name=bulb", "", nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, s, "PATCH", "/catalogs", token, map[string]any{
		"name":  "Starters",
		"cards": []map[string]any{cardBody("Squirtle")},
	})
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, s, "GET", "/catalogs/Starters/cards", "", nil)
	expectStatus(t, rr, http.StatusOK)
	decodeBody(t, rr, &cards)
	if len(cards) != 1 || cards[0].Name != "Squirtle" {
		t.Errorf("unexpected catalog cards after replace: %+v", cards)
	}

	rr = do(t, s, "DELETE", "/catalogs/Starters", token, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, s, "GET", "/catalogs/Starters", "", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestSeedCatalog(t *testing.T) {
	s, store := newTestServer(t)

	for i := 0; i < 2; i++ {
		if err := s.SeedCatalog(context.Background(), "../../data/catalog.json"); err != nil {
			t.Fatalf("failed to seed catalog: %v", err)
		}
	}

	catalogs, err := store.Catalogs(context.Background())
	if err != nil {
		t.Fatalf("failed to list catalogs: %v", err)
	}
	if len(catalogs) != 1 || catalogs[0].Name != "Base Set" || len(catalogs[0].Cards) != 6 {
		t.Fatalf("unexpected catalogs: %+v", catalogs)
	}

	cards, err := store.Cards(context.Background(), models.CardFilter{})
	if err != nil {
		t.Fatalf("failed to list cards: %v", err)
	}
	if len(cards) != 6 {
		t.Fatalf("expected reseeding to replace the cards, got %d", len(cards))
	}

	rr := do(t, s, "GET", "/catalogs/search?rarity=Ultra%20Rare", "", nil)
	expectStatus(t, rr, http.StatusOK)

	if err := s.SeedCatalog(context.Background(), "does-not-exist.json"); err == nil {
		t.Error("expected an error for a missing seed file")
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s, "GET", "/health", "", nil)
	expectStatus(t, rr, http.StatusOK)
}
