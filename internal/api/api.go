package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/config"
	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/lib/jwt"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Storage is the persistence the handlers depend on. Lookups return
// errors wrapping storage.ErrNotFound, unique conflicts wrap storage.ErrExists.
type Storage interface {
	SaveUser(ctx context.Context, user models.User) error
	User(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByName(ctx context.Context, name string) (*models.User, error)
	Users(ctx context.Context, name string) ([]models.User, error)
	UpdateUser(ctx context.Context, user models.User) error
	DeleteUser(ctx context.Context, id string) error
	GrantCard(ctx context.Context, userID, cardID string) error

	SaveAttack(ctx context.Context, attack models.Attack) error
	Attack(ctx context.Context, id string) (*models.Attack, error)
	SaveCard(ctx context.Context, card models.Card) error
	Card(ctx context.Context, id string) (*models.Card, error)
	CardByName(ctx context.Context, name string) (*models.Card, error)
	Cards(ctx context.Context, filter models.CardFilter) ([]models.Card, error)
	UpdateCard(ctx context.Context, card models.Card) error
	DeleteCard(ctx context.Context, id string) error
	DeleteCards(ctx context.Context) error

	SaveCatalog(ctx context.Context, catalog models.Catalog) error
	Catalog(ctx context.Context, name string) (*models.Catalog, error)
	Catalogs(ctx context.Context) ([]models.Catalog, error)
	SetCatalogCards(ctx context.Context, name string, cardIDs []string) error
	DeleteCatalog(ctx context.Context, name string) error

	AddTradeRequest(ctx context.Context, req models.TradeRequest) error
	Mailbox(ctx context.Context, userID string) ([]models.TradeRequest, error)
	UpdateTradeRequest(ctx context.Context, req models.TradeRequest) error
	DeleteTradeRequest(ctx context.Context, userID, requestID string) error
	AcceptTradeRequest(ctx context.Context, userID, requestID string) (*models.Transaction, error)
	SwapCards(ctx context.Context, swap storage.Swap) (*models.Transaction, error)
	Transactions(ctx context.Context, userID string) ([]models.Transaction, error)
}

type APIServer struct {
	config    *config.Config
	logger    *slog.Logger
	server    *http.Server
	storage   Storage
	validate  *validator.Validate
	jwtSecret []byte
}

func New(config *config.Config, logger *slog.Logger, storage Storage, jwtSecret []byte) *APIServer {
	s := &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:              config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
			ReadHeaderTimeout: 10 * time.Second,
		},
		storage:   storage,
		validate:  newValidator(),
		jwtSecret: jwtSecret,
	}
	s.server.Handler = s.configureRouter()

	return s
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler, mostly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) configureRouter() http.Handler {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/health", s.healthHandler()).Methods("GET")

	router.HandleFunc("/auth/signup", s.signupHandler()).Methods("POST")
	router.HandleFunc("/auth/signin", s.signinHandler()).Methods("POST")

	router.HandleFunc("/cards", s.authenticate(s.listCardsHandler())).Methods("GET")
	router.HandleFunc("/cards", s.authenticate(s.createCardHandler())).Methods("POST")
	router.HandleFunc("/cards", s.authenticate(s.deleteCardsHandler())).Methods("DELETE")
	router.HandleFunc("/cards/{name}", s.authenticate(s.createUserCardHandler())).Methods("POST")
	router.HandleFunc("/cards/{key}", s.authenticate(s.getCardHandler())).Methods("GET")
	router.HandleFunc("/cards/{id}", s.authenticate(s.updateCardHandler())).Methods("PUT")
	router.HandleFunc("/cards/{id}", s.authenticate(s.deleteCardHandler())).Methods("DELETE")
	router.HandleFunc("/attacks/{id}", s.authenticate(s.getAttackHandler())).Methods("GET")

	router.HandleFunc("/catalogs", s.listCatalogsHandler()).Methods("GET")
	router.HandleFunc("/catalogs", s.authenticate(s.createCatalogHandler())).Methods("POST")
	router.HandleFunc("/catalogs", s.authenticate(s.replaceCatalogCardsHandler())).Methods("PATCH")
	router.HandleFunc("/catalogs/search", s.searchCardsHandler()).Methods("GET")
	router.HandleFunc("/catalogs/{name}", s.getCatalogHandler()).Methods("GET")
	router.HandleFunc("/catalogs/{name}", s.authenticate(s.deleteCatalogHandler())).Methods("DELETE")
	router.HandleFunc("/catalogs/{name}/cards", s.catalogCardsHandler()).Methods("GET")
	router.HandleFunc("/catalogs/{name}/search", s.searchCatalogHandler()).Methods("GET")

	router.HandleFunc("/users", s.listUsersHandler()).Methods("GET")
	router.HandleFunc("/users/search", s.searchUsersHandler()).Methods("GET")
	router.HandleFunc("/users/{id}", s.getUserHandler()).Methods("GET")
	router.HandleFunc("/users/{id}", s.authenticate(s.updateUserHandler())).Methods("PUT")
	router.HandleFunc("/users/{id}", s.authenticate(s.deleteUserHandler())).Methods("DELETE")
	router.HandleFunc("/users/{id}/cards", s.userCardsHandler()).Methods("GET")
	router.HandleFunc("/users/{id}/transactions", s.userTransactionsHandler()).Methods("GET")

	router.HandleFunc("/users/{id}/mailbox", s.authenticate(s.proposeTradeHandler())).Methods("POST")
	router.HandleFunc("/users/{id}/mailbox", s.mailboxHandler()).Methods("GET")
	router.HandleFunc("/users/{id}/mailbox/{requestId}", s.authenticate(s.updateTradeHandler())).Methods("PUT")
	router.HandleFunc("/users/{id}/mailbox/{requestId}", s.authenticate(s.deleteTradeHandler())).Methods("DELETE")
	router.HandleFunc("/users/{id}/mailbox/{requestId}/accept", s.authenticate(s.acceptTradeHandler())).Methods("POST")
	router.HandleFunc("/users/{id}/mailbox/{requestId}/reject", s.authenticate(s.rejectTradeHandler())).Methods("POST")

	router.HandleFunc("/transactions", s.authenticate(s.transactionHandler())).Methods("POST")

	return handlers.CORS(
		handlers.AllowedOrigins(s.config.CorsOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)
}

func (s *APIServer) healthHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type ctxKey int

const ctxKeyEmail ctxKey = iota

func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(tokenHeader, " ", 2)
		if tokenHeader == "" || len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			writeJSON(w, http.StatusUnauthorized, message{Msg: "Token is missing"})
			return
		}

		claims, err := jwt.ParseToken(parts[1], string(s.jwtSecret))
		if err != nil {
			s.logger.Debug("Rejected token", "error", err)
			writeJSON(w, http.StatusForbidden, message{Msg: "Invalid token"})
			return
		}
		_, email, err := jwt.Subject(claims)
		if err != nil {
			writeJSON(w, http.StatusForbidden, message{Msg: "Invalid token"})
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyEmail, email)))
	}
}

// caller resolves the user behind the request's token. A token whose user
// no longer exists is forbidden.
func (s *APIServer) caller(r *http.Request) (*models.User, error) {
	email, _ := r.Context().Value(ctxKeyEmail).(string)
	if email == "" {
		return nil, errForbidden
	}
	user, err := s.storage.UserByEmail(r.Context(), email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errForbidden
	}
	return user, err
}

// logRequests writes one line per request once the response is done.
func (s *APIServer) logRequests(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		s.logger.Info("Request",
			slog.String("method", p.Request.Method),
			slog.String("path", p.URL.Path),
			slog.Int("status", p.StatusCode),
			slog.Int("size", p.Size),
			slog.Duration("duration", time.Since(p.TimeStamp)),
		)
	})
}
