package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/oauth2"
)

const credentialsDDL = `CREATE TABLE IF NOT EXISTS credentials (
    user_id    TEXT PRIMARY KEY,
    token      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores credential records in a single table keyed by user id.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the credentials table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, credentialsDDL); err != nil {
		return fmt.Errorf("migrate credentials: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) PutCredential(ctx context.Context, userID string, tok *oauth2.Token) error {
	b, err := marshalToken(tok)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO credentials (user_id, token, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token, updated_at = now()`, userID, b)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (p *Postgres) GetCredential(ctx context.Context, userID string) (*oauth2.Token, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT token FROM credentials WHERE user_id=$1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return unmarshalToken(raw)
}

func marshalToken(tok *oauth2.Token) ([]byte, error) {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, errors.New("empty token")
	}
	return json.Marshal(tok)
}

func unmarshalToken(raw []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &tok, nil
}
