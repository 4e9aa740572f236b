package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultKeyPrefix    = "authority:"
)

const (
	familyClient      = "client"
	familyToken       = "token"
	familySession     = "session"
	familyPending     = "pending"
	familyUMAResource = "uma_resource"
	familyUMATicket   = "uma_ticket"
	familyUMARPT      = "uma_rpt"
	familyUMAPCT      = "uma_pct"
)

// watchRetries bounds the optimistic transactions of conditional writes.
const watchRetries = 5

type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	// KeyPrefix namespaces every key, e.g. "authority:tenant:".
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connect opens a client for cfg and checks the server is reachable.
func Connect(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Managers groups the managers of every entity family sharing one client.
type Managers struct {
	Client               *ClientManager
	Token                *TokenManager
	Session              *SessionManager
	PendingAuthorization *PendingAuthorizationManager
	UMAResource          *UMAResourceManager
	UMATicket            *UMATicketManager
	UMARPT               *UMARPTManager
	UMAPCT               *UMAPCTManager
}

func NewManagers(client goredis.UniversalClient, keyPrefix string) Managers {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return Managers{
		Client:               NewClientManager(client, keyPrefix),
		Token:                NewTokenManager(client, keyPrefix),
		Session:              NewSessionManager(client, keyPrefix),
		PendingAuthorization: NewPendingAuthorizationManager(client, keyPrefix),
		UMAResource:          NewUMAResourceManager(client, keyPrefix),
		UMATicket:            NewUMATicketManager(client, keyPrefix),
		UMARPT:               NewUMARPTManager(client, keyPrefix),
		UMAPCT:               NewUMAPCTManager(client, keyPrefix),
	}
}
