package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Ensure SessionManager implements the interface.
var _ driving.SessionManager = (*SessionManager)(nil)

// DefaultRefreshThreshold is how close to expiry a token may get before it
// is refreshed.
const DefaultRefreshThreshold = 5 * time.Minute

// sharedLockTTL bounds how long a crashed process can hold a user's lock in a
// shared session store.
const sharedLockTTL = 30 * time.Second

// SessionManager keeps per-user provider credentials encrypted at rest and
// refreshes them before they expire. Refreshes for one user are serialised,
// across processes too when the store is a driven.SessionLocker.
type SessionManager struct {
	store     driven.SessionStore
	shared    driven.SessionLocker
	cipher    driven.Cipher
	refresher driven.TokenRefresher
	threshold time.Duration

	locks  *keyedMutex
	tokens *cache.Cache
	now    func() time.Time
}

// cachedToken is a decrypted access token together with the ciphertext it
// came from.
type cachedToken struct {
	token  string
	sealed []byte
	expiry time.Time
}

// sealedCredential is the plaintext layout encrypted into a session's
// refresh ciphertext.
type sealedCredential struct {
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// NewSessionManager creates a session manager. A non-positive threshold
// uses DefaultRefreshThreshold.
func NewSessionManager(
	store driven.SessionStore,
	cipher driven.Cipher,
	refresher driven.TokenRefresher,
	threshold time.Duration,
) *SessionManager {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	shared, _ := store.(driven.SessionLocker)
	return &SessionManager{
		store:     store,
		shared:    shared,
		cipher:    cipher,
		refresher: refresher,
		threshold: threshold,
		locks:     newKeyedMutex(),
		tokens:    cache.New(cache.NoExpiration, 10*time.Minute),
		now:       time.Now,
	}
}

// lock takes userID's in-process lock and, for shared stores, the store's
// lock as well.
func (m *SessionManager) lock(ctx context.Context, userID string) (func(), error) {
	unlock := m.locks.Lock(userID)
	if m.shared == nil {
		return unlock, nil
	}
	release, err := m.shared.LockSession(ctx, userID, sharedLockTTL)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

// Establish encrypts cred and stores it as userID's session.
func (m *SessionManager) Establish(ctx context.Context, userID, provider string, cred domain.Credential) error {
	parsedProvider, _, _, err := domain.ParseUserID(userID)
	if err != nil {
		return err
	}
	if parsedProvider != provider {
		return domain.NewError(domain.KindValidation, "user id %s does not belong to provider %s", userID, provider)
	}
	if cred.AccessToken == "" {
		return domain.NewError(domain.KindValidation, "access token is required")
	}

	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := m.persist(ctx, userID, provider, cred, time.Time{}); err != nil {
		return err
	}
	logger.L().Info("session established", zap.String("user_id", userID), zap.String("provider", provider),
		zap.Time("expiry", cred.Expiry))
	return nil
}

// ExchangeCode trades an authorization code for a credential and
// establishes a session under a freshly minted user ID.
func (m *SessionManager) ExchangeCode(ctx context.Context, provider, role, code, redirectURI string) (string, error) {
	if code == "" {
		return "", domain.NewError(domain.KindValidation, "authorization code is required")
	}
	userID, err := domain.NewUserID(provider, role, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		return "", err
	}
	cred, err := m.refresher.Exchange(ctx, provider, code, redirectURI)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if err := m.Establish(ctx, userID, provider, cred); err != nil {
		return "", err
	}
	return userID, nil
}

// GetValidCredential returns an access token valid beyond the refresh
// threshold, refreshing it first if needed.
func (m *SessionManager) GetValidCredential(ctx context.Context, userID string) (string, error) {
	if token, ok, err := m.cached(ctx, userID); err != nil || ok {
		return token, err
	}

	sess, cred, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if !cred.ExpiresWithin(m.now(), m.threshold) {
		m.remember(sess, cred)
		return cred.AccessToken, nil
	}

	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	// Another caller may have refreshed while we waited.
	sess, cred, err = m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if !cred.ExpiresWithin(m.now(), m.threshold) {
		m.remember(sess, cred)
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, sess, cred)
}

// ForceRefresh refreshes userID's credential regardless of its expiry.
// Callers that queued behind a refresh completed after they asked get that
// refresh's result instead of triggering another.
func (m *SessionManager) ForceRefresh(ctx context.Context, userID string) (string, error) {
	requested := m.now()

	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	sess, cred, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if sess.UpdatedAt.After(requested) && cred.RefreshToken != "" {
		m.remember(sess, cred)
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, sess, cred)
}

// Revoke deletes userID's session.
func (m *SessionManager) Revoke(ctx context.Context, userID string) error {
	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	m.tokens.Delete(userID)
	if err := m.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	logger.L().Info("session revoked", zap.String("user_id", userID))
	return nil
}

// Status returns the non-secret view of userID's session.
func (m *SessionManager) Status(ctx context.Context, userID string) (*domain.SessionStatus, error) {
	sess, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "no session for %s", userID)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &domain.SessionStatus{
		UserID:   sess.UserID,
		Provider: sess.Provider,
		Expiry:   sess.Expiry,
		Expired:  !sess.Expiry.IsZero() && !sess.Expiry.After(m.now()),
	}, nil
}

// RefreshExpiring refreshes every session expiring within d. Failures are
// logged and joined; the count covers successful refreshes only.
func (m *SessionManager) RefreshExpiring(ctx context.Context, d time.Duration) (int, error) {
	sessions, err := m.store.ListExpiring(ctx, m.now().Add(d))
	if err != nil {
		return 0, fmt.Errorf("list expiring sessions: %w", err)
	}

	var errs []error
	refreshed := 0
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		userID := sessions[i].UserID
		if err := m.refreshIfExpiring(ctx, userID, d); err != nil {
			logger.L().Warn("proactive refresh failed", zap.String("user_id", userID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", userID, err))
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

func (m *SessionManager) refreshIfExpiring(ctx context.Context, userID string, d time.Duration) error {
	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, cred, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	if !cred.ExpiresWithin(m.now(), d) {
		return nil
	}
	_, err = m.refresh(ctx, sess, cred)
	return err
}

// refresh exchanges cred's refresh token and persists the result.
// The caller holds the user's lock.
func (m *SessionManager) refresh(ctx context.Context, sess *domain.Session, cred domain.Credential) (string, error) {
	m.tokens.Delete(sess.UserID)
	if cred.RefreshToken == "" {
		return "", domain.NewError(domain.KindAuthentication, "session %s has no refresh token", sess.UserID)
	}

	fresh, err := m.refresher.Refresh(ctx, sess.Provider, cred.RefreshToken)
	if err != nil {
		logger.L().Warn("token refresh failed", zap.String("user_id", sess.UserID),
			zap.String("provider", sess.Provider), zap.Error(err))
		if errors.Is(err, domain.ErrAuthentication) {
			m.dropRefreshToken(ctx, sess)
		}
		return "", err
	}
	// Providers may omit the refresh token when it is unchanged.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	if fresh.TokenType == "" {
		fresh.TokenType = cred.TokenType
	}

	saved, err := m.persist(ctx, sess.UserID, sess.Provider, fresh, sess.CreatedAt)
	if err != nil {
		return "", err
	}
	m.remember(saved, fresh)
	logger.L().Info("token refreshed", zap.String("user_id", sess.UserID), zap.Time("expiry", fresh.Expiry))
	return fresh.AccessToken, nil
}

// dropRefreshToken forgets a refresh token the provider rejected, so later
// calls fail without another round trip. The access token stays until it
// expires.
func (m *SessionManager) dropRefreshToken(ctx context.Context, sess *domain.Session) {
	dead := *sess
	dead.RefreshCiphertext = nil
	dead.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, &dead); err != nil {
		logger.L().Warn("dropping rejected refresh token failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return
	}
	logger.L().Info("refresh token rejected, re-authentication required", zap.String("user_id", sess.UserID))
}

// load reads and decrypts userID's session. A missing or undecryptable
// session is an authentication error: only re-authentication can fix it.
func (m *SessionManager) load(ctx context.Context, userID string) (*domain.Session, domain.Credential, error) {
	sess, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Credential{}, domain.NewError(domain.KindAuthentication, "no session for %s", userID)
		}
		return nil, domain.Credential{}, fmt.Errorf("get session: %w", err)
	}

	access, err := m.cipher.Decrypt(userID, sess.AccessCiphertext)
	if err != nil {
		return nil, domain.Credential{}, domain.WrapError(domain.KindAuthentication, err, "open access token")
	}
	cred := domain.Credential{AccessToken: string(access), Expiry: sess.Expiry}

	if len(sess.RefreshCiphertext) > 0 {
		raw, err := m.cipher.Decrypt(userID, sess.RefreshCiphertext)
		if err != nil {
			return nil, domain.Credential{}, domain.WrapError(domain.KindAuthentication, err, "open refresh token")
		}
		var sealed sealedCredential
		if err := json.Unmarshal(raw, &sealed); err != nil {
			return nil, domain.Credential{}, domain.WrapError(domain.KindAuthentication, err, "decode refresh token")
		}
		cred.RefreshToken = sealed.RefreshToken
		cred.TokenType = sealed.TokenType
	}
	return sess, cred, nil
}

func (m *SessionManager) persist(
	ctx context.Context, userID, provider string, cred domain.Credential, createdAt time.Time,
) (*domain.Session, error) {
	access, err := m.cipher.Encrypt(userID, []byte(cred.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	raw, err := json.Marshal(sealedCredential{RefreshToken: cred.RefreshToken, TokenType: cred.TokenType})
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}
	refresh, err := m.cipher.Encrypt(userID, raw)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	now := m.now().UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	sess := &domain.Session{
		UserID:            userID,
		Provider:          provider,
		AccessCiphertext:  access,
		RefreshCiphertext: refresh,
		Expiry:            cred.Expiry,
		CreatedAt:         createdAt,
		UpdatedAt:         now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.tokens.Delete(userID)
	return sess, nil
}

// cached returns a remembered access token still outside the threshold.
// Every hit is checked against the stored ciphertext, so a revoke or a
// refresh done by another process is seen at once.
func (m *SessionManager) cached(ctx context.Context, userID string) (string, bool, error) {
	v, ok := m.tokens.Get(userID)
	if !ok {
		return "", false, nil
	}
	entry, ok := v.(cachedToken)
	if !ok || (domain.Credential{Expiry: entry.expiry}).ExpiresWithin(m.now(), m.threshold) {
		return "", false, nil
	}

	sess, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.tokens.Delete(userID)
			return "", false, domain.NewError(domain.KindAuthentication, "no session for %s", userID)
		}
		return "", false, fmt.Errorf("get session: %w", err)
	}
	if !bytes.Equal(sess.AccessCiphertext, entry.sealed) {
		m.tokens.Delete(userID)
		return "", false, nil
	}
	return entry.token, true, nil
}

// remember caches sess's access token until it enters the refresh threshold.
func (m *SessionManager) remember(sess *domain.Session, cred domain.Credential) {
	ttl := cache.NoExpiration
	if !cred.Expiry.IsZero() {
		ttl = cred.Expiry.Sub(m.now()) - m.threshold
		if ttl <= 0 {
			return
		}
	}
	m.tokens.Set(sess.UserID, cachedToken{
		token:  cred.AccessToken,
		sealed: sess.AccessCiphertext,
		expiry: cred.Expiry,
	}, ttl)
}
