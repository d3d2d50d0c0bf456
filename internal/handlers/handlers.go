package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"expense-api/internal/auth"
	"expense-api/internal/models"
	"expense-api/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db     *storage.DB
	tokens *auth.TokenIssuer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, tokens *auth.TokenIssuer) *Handlers {
	return &Handlers{db: db, tokens: tokens}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type expenseRequest struct {
	Title  string  `json:"title"`
	Amount float64 `json:"amount"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Routes builds the HTTP router for the API.
func (h *Handlers) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Get("/healthz", h.Healthz)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/expenses", h.ListExpenses)
		r.Post("/expenses", h.CreateExpense)
		r.Put("/expenses/{id}", h.UpdateExpense)
		r.Delete("/expenses/{id}", h.DeleteExpense)
	})

	return r
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require a valid bearer token. The token
// signature is checked before any database access; only after verification is
// the embedded user id looked up. Every failure mode gets the same response,
// so a caller cannot tell a bad signature from a deleted user.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeUnauthorized(w)
			return
		}

		userID, err := h.tokens.Verify(token)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		user, err := h.db.GetUserByID(userID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				log.Printf("AuthMiddleware user lookup error: %v", err)
			}
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Signup registers a new user account.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	// Advisory pre-check for a friendlier error; the UNIQUE constraint on
	// users.email is what actually rejects a racing duplicate.
	if _, err := h.db.GetUserByEmail(req.Email); err == nil {
		writeError(w, http.StatusBadRequest, "email_taken", "Email already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("Signup email lookup error: %v", err)
		writeInternalError(w)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Signup password hash error: %v", err)
		writeInternalError(w)
		return
	}

	if _, err := h.db.CreateUser(req.Username, req.Email, hash); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "email_taken", "Email already exists")
			return
		}
		log.Printf("Signup create user error: %v", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "User created successfully"})
}

// Login checks credentials and issues a bearer token. Unknown email and
// wrong password produce identical responses.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	user, err := h.db.GetUserByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("Login email lookup error: %v", err)
			writeInternalError(w)
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		log.Printf("Login token issue error: %v", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// ListExpenses returns all expenses owned by the caller.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	expenses, err := h.db.ListExpensesByUser(user.ID)
	if err != nil {
		log.Printf("ListExpenses error: %v", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, expenses)
}

// CreateExpense records a new expense for the caller. The amount may be any
// finite number; only the title is validated.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	req, ok := decodeExpense(w, r)
	if !ok {
		return
	}

	if _, err := h.db.CreateExpense(user.ID, req.Title, req.Amount); err != nil {
		log.Printf("CreateExpense error: %v", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense added"})
}

// UpdateExpense changes title and amount of one of the caller's expenses.
// A non-existent or non-owned id affects zero rows and still reports success;
// there is no 404 on this path.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expense id must be an integer")
		return
	}

	req, ok := decodeExpense(w, r)
	if !ok {
		return
	}

	if _, err := h.db.UpdateExpense(user.ID, id, req.Title, req.Amount); err != nil {
		log.Printf("UpdateExpense error: %v", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense updated"})
}

// DeleteExpense removes one of the caller's expenses. Same silent no-op
// semantics as UpdateExpense when nothing matches.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expense id must be an integer")
		return
	}

	if _, err := h.db.DeleteExpense(user.ID, id); err != nil {
		log.Printf("DeleteExpense error: %v", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense deleted"})
}

// Healthz reports whether the service can reach its database.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		log.Printf("Healthz ping error: %v", err)
		writeError(w, http.StatusInternalServerError, "unhealthy", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeExpense(w http.ResponseWriter, r *http.Request) (expenseRequest, bool) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return expenseRequest{}, false
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return expenseRequest{}, false
	}
	return req, true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
