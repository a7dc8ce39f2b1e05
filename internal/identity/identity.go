// Package identity отвечает на вопрос "какой кошелек сейчас подключен".
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected кошелек не подключен или сессия истекла
var ErrNotConnected = errors.New("wallet not connected")

// Provider возвращает адрес подключенного владельца
type Provider interface {
	Owner(ctx context.Context) (common.Address, error)
}

// Connector открывает и закрывает сессии кошельков
type Connector interface {
	Connect(ctx context.Context, address common.Address, passphrase string) (time.Time, error)
	Disconnect(address common.Address)
}

type ownerKey struct{}

// WithOwner кладет адрес из токена в контекст запроса
func WithOwner(ctx context.Context, address common.Address) context.Context {
	return context.WithValue(ctx, ownerKey{}, address)
}

// OwnerFromContext достает адрес из контекста
func OwnerFromContext(ctx context.Context) (common.Address, bool) {
	address, ok := ctx.Value(ownerKey{}).(common.Address)
	return address, ok
}

// sessions время жизни сессий по адресам
type sessions struct {
	mu      sync.RWMutex
	ttl     time.Duration
	expires map[common.Address]time.Time
	now     func() time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{
		ttl:     ttl,
		expires: make(map[common.Address]time.Time),
		now:     time.Now,
	}
}

func (s *sessions) open(address common.Address) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	s.expires[address] = expiresAt
	return expiresAt
}

func (s *sessions) close(address common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, address)
}

func (s *sessions) owner(ctx context.Context) (common.Address, error) {
	address, ok := OwnerFromContext(ctx)
	if !ok || address == (common.Address{}) {
		return common.Address{}, ErrNotConnected
	}

	s.mu.RLock()
	expiresAt, ok := s.expires[address]
	s.mu.RUnlock()

	if !ok || !s.now().Before(expiresAt) {
		return common.Address{}, fmt.Errorf("%s: %w", address.Hex(), ErrNotConnected)
	}
	return address, nil
}

// KeystoreProvider считает адрес подключенным, пока его ключ
// разблокирован в keystore
type KeystoreProvider struct {
	*sessions
	ks     *keystore.KeyStore
	logger *logrus.Logger
}

// NewKeystoreProvider создает провайдер поверх каталога ключей
func NewKeystoreProvider(ks *keystore.KeyStore, ttl time.Duration, logger *logrus.Logger) *KeystoreProvider {
	return &KeystoreProvider{
		sessions: newSessions(ttl),
		ks:       ks,
		logger:   logger,
	}
}

// Connect разблокирует ключ на время сессии
func (p *KeystoreProvider) Connect(ctx context.Context, address common.Address, passphrase string) (time.Time, error) {
	account, err := p.ks.Find(accounts.Account{Address: address})
	if err != nil {
		return time.Time{}, fmt.Errorf("account %s: %w", address.Hex(), ErrNotConnected)
	}

	if err := p.ks.TimedUnlock(account, passphrase, p.ttl); err != nil {
		p.logger.Warnf("Failed to unlock wallet %s: %v", address.Hex(), err)
		return time.Time{}, fmt.Errorf("failed to unlock wallet: %w", err)
	}

	expiresAt := p.open(address)
	p.logger.Infof("Wallet connected: %s until %s", address.Hex(), expiresAt.Format(time.RFC3339))
	return expiresAt, nil
}

// Disconnect блокирует ключ и закрывает сессию
func (p *KeystoreProvider) Disconnect(address common.Address) {
	if err := p.ks.Lock(address); err != nil {
		p.logger.Debugf("Failed to lock wallet %s: %v", address.Hex(), err)
	}
	p.close(address)
}

// Owner реализует Provider
func (p *KeystoreProvider) Owner(ctx context.Context) (common.Address, error) {
	return p.owner(ctx)
}

// OpenProvider принимает любой адрес без пароля. Для LEDGER_MODE=memory.
type OpenProvider struct {
	*sessions
}

// NewOpenProvider создает провайдер без проверки ключей
func NewOpenProvider(ttl time.Duration) *OpenProvider {
	return &OpenProvider{sessions: newSessions(ttl)}
}

// Connect открывает сессию
func (p *OpenProvider) Connect(_ context.Context, address common.Address, _ string) (time.Time, error) {
	if address == (common.Address{}) {
		return time.Time{}, ErrNotConnected
	}
	return p.open(address), nil
}

// Disconnect закрывает сессию
func (p *OpenProvider) Disconnect(address common.Address) {
	p.close(address)
}

// Owner реализует Provider
func (p *OpenProvider) Owner(ctx context.Context) (common.Address, error) {
	return p.owner(ctx)
}

// Static всегда возвращает один и тот же адрес. Нулевой адрес значит
// "не подключен".
type Static struct {
	Address common.Address
}

// Owner реализует Provider
func (s Static) Owner(context.Context) (common.Address, error) {
	if s.Address == (common.Address{}) {
		return common.Address{}, ErrNotConnected
	}
	return s.Address, nil
}
