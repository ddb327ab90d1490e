package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/logging"
)

const (
	tokenIssuer = "shiftrecon"
	tokenLeeway = 30 * time.Second
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInvalidToken       = errors.New("invalid or expired token")
	errUserExists         = errors.New("username already exists")
)

// UserStore is the slice of store.Repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies HS256 access tokens for back-office users.
// Accounts are mirrored from the UserStore and re-read before each login so
// users created on another replica can sign in.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	parser   *jwtlib.Parser
	users    UserStore
	log      *logrus.Entry

	mu       sync.RWMutex
	accounts map[string]domain.UserAccount
	// decoy is compared against when the username is unknown.
	decoy []byte
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	decoy, _ := bcrypt.GenerateFromPassword([]byte("decoy-password"), bcrypt.MinCost)
	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		parser: jwtlib.NewParser(
			jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
			jwtlib.WithIssuer(tokenIssuer),
			jwtlib.WithExpirationRequired(),
			jwtlib.WithLeeway(tokenLeeway),
		),
		users:    users,
		log:      logging.For("auth"),
		accounts: make(map[string]domain.UserAccount),
		decoy:    decoy,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.refresh(ctx)
	return a
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (a *AuthManager) lookup(username string) (domain.UserAccount, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	account, ok := a.accounts[username]
	return account, ok
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.refresh(ctx)

	account, ok := a.lookup(normalizeUsername(req.Username))
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.decoy, []byte(req.Password))
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !checkPassword(account.Password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, errors.New("account is disabled")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	signed, err := a.sign(account.Username, account.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	a.log.WithFields(logrus.Fields{"username": account.Username, "role": account.Role}).Info("login")

	return domain.LoginResponse{
		AccessToken: signed,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken verifies signature, issuer and expiry and returns the caller.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims accessClaims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// CreateUser adds a manager or staff account. Admins are provisioned out of band.
func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	a.refresh(ctx)

	username := normalizeUsername(req.Username)
	switch {
	case strings.ContainsAny(username, " \t\r\n"):
		return domain.UserAccount{}, errors.New("username must not contain spaces")
	case req.Role != domain.RoleManager && req.Role != domain.RoleStaff:
		return domain.UserAccount{}, errors.New("role must be manager or staff")
	}
	if _, taken := a.lookup(username); taken {
		return domain.UserAccount{}, errUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, errors.New("failed to hash password")
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      req.Role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if a.users != nil {
		if err := a.users.CreateUser(ctx, account); err != nil {
			return domain.UserAccount{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = account
	a.mu.Unlock()

	account.Password = ""
	return account, nil
}

// ListUsers returns accounts sorted by username, without password hashes.
func (a *AuthManager) ListUsers(ctx context.Context) []domain.UserAccount {
	a.refresh(ctx)

	a.mu.RLock()
	out := make([]domain.UserAccount, 0, len(a.accounts))
	for _, account := range a.accounts {
		account.Password = ""
		out = append(out, account)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// refresh mirrors the user store. Plain-text passwords left by older seed
// data are hashed and written back.
func (a *AuthManager) refresh(ctx context.Context) {
	if a.users == nil {
		return
	}
	stored, err := a.users.ListUsers(ctx)
	if err != nil {
		a.log.WithError(err).Warn("user store refresh failed, using cached accounts")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, account := range stored {
		account.Username = normalizeUsername(account.Username)
		if account.Username == "" {
			continue
		}
		if !isBcryptHash(account.Password) {
			hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			account.Password = string(hash)
			if err := a.users.UpdateUserPassword(ctx, account.Username, account.Password); err != nil {
				a.log.WithError(err).WithField("username", account.Username).Warn("password rehash not persisted")
			}
		}
		a.accounts[account.Username] = account
	}
}

func checkPassword(hash string, plain string) bool {
	if strings.TrimSpace(plain) == "" || !isBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func isBcryptHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
