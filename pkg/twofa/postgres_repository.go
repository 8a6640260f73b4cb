package twofa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL. The tagged
// mode variant maps onto nullable columns; user_id carries a unique
// constraint so the one-config-per-user invariant is enforced by the
// database as well.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL 2FA config repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (Config, error) {
	query := `
		SELECT id, user_id, secret_key, tfa_type, qr_code_uri, pending_code, code_issued_at, created_at, updated_at
		FROM tfa_configs
		WHERE user_id = $1
	`

	var (
		cfg          Config
		secretKey    string
		tfaType      string
		qrCodeURI    sql.NullString
		pendingCode  sql.NullString
		codeIssuedAt sql.NullTime
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cfg.ID,
		&cfg.UserID,
		&secretKey,
		&tfaType,
		&qrCodeURI,
		&pendingCode,
		&codeIssuedAt,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrConfigNotFound
		}
		return Config{}, fmt.Errorf("failed to get 2FA config: %w", err)
	}

	switch TFAType(tfaType) {
	case TFATypeApp:
		cfg.Mode = AppMode{SecretKey: secretKey, QRCodeURI: qrCodeURI.String}
	case TFATypeEmail:
		cfg.Mode = EmailMode{
			SecretKey:    secretKey,
			PendingCode:  pendingCode.String,
			CodeIssuedAt: codeIssuedAt.Time,
		}
	default:
		return Config{}, fmt.Errorf("unknown tfa_type in storage: %s", tfaType)
	}
	return cfg, nil
}

func (r *PostgresRepository) Save(ctx context.Context, config Config) (Config, error) {
	var (
		qrCodeURI    sql.NullString
		pendingCode  sql.NullString
		codeIssuedAt sql.NullTime
	)
	switch m := config.Mode.(type) {
	case AppMode:
		if m.QRCodeURI != "" {
			qrCodeURI = sql.NullString{String: m.QRCodeURI, Valid: true}
		}
	case EmailMode:
		if m.PendingCode != "" {
			pendingCode = sql.NullString{String: m.PendingCode, Valid: true}
			codeIssuedAt = sql.NullTime{Time: m.CodeIssuedAt, Valid: true}
		}
	default:
		return Config{}, fmt.Errorf("unknown 2FA mode")
	}

	query := `
		INSERT INTO tfa_configs (user_id, secret_key, tfa_type, qr_code_uri, pending_code, code_issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			secret_key = EXCLUDED.secret_key,
			tfa_type = EXCLUDED.tfa_type,
			qr_code_uri = EXCLUDED.qr_code_uri,
			pending_code = EXCLUDED.pending_code,
			code_issued_at = EXCLUDED.code_issued_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		config.UserID,
		config.Mode.Secret(),
		string(config.Mode.TFAType()),
		qrCodeURI,
		pendingCode,
		codeIssuedAt,
	).Scan(&config.ID, &config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("failed to save 2FA config: %w", err)
	}
	return config, nil
}

func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tfa_configs WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete 2FA config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}
