package services

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	accountsTable = "accounts"
	colID         = "id"
	colCoins      = "coins"
)

const createAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
	id    TEXT PRIMARY KEY,
	coins DOUBLE PRECISION NOT NULL
)`

type PostgresLedger struct {
	dbc            *pgxpool.Pool
	defaultBalance float64
	qb             sq.StatementBuilderType
}

func NewPostgresLedger(ctx context.Context, dsn string, defaultBalance float64) (*PostgresLedger, error) {
	dbc, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := dbc.Ping(ctx); err != nil {
		dbc.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := dbc.Exec(ctx, createAccountsTable); err != nil {
		dbc.Close()
		return nil, fmt.Errorf("failed to create accounts table: %w", err)
	}

	return &PostgresLedger{
		dbc:            dbc,
		defaultBalance: defaultBalance,
		qb:             sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (r *PostgresLedger) Close() error {
	r.dbc.Close()
	return nil
}

func (r *PostgresLedger) Get(ctx context.Context, userID string) (float64, error) {
	return r.Ensure(ctx, userID, r.defaultBalance)
}

func (r *PostgresLedger) Lookup(ctx context.Context, userID string) (float64, bool, error) {
	query := r.qb.Select(colCoins).
		From(accountsTable).
		Where(sq.Eq{colID: userID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, false, err
	}

	var coins float64
	err = r.dbc.QueryRow(ctx, sqlStr, args...).Scan(&coins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get balance: %w", err)
	}

	return coins, true, nil
}

// Ensure inserts the account if missing. The no-op update makes RETURNING yield the
// existing row on conflict.
func (r *PostgresLedger) Ensure(ctx context.Context, userID string, balance float64) (float64, error) {
	query := r.qb.Insert(accountsTable).
		Columns(colID, colCoins).
		Values(userID, balance).
		Suffix("ON CONFLICT (" + colID + ") DO UPDATE SET " + colCoins + " = " + accountsTable + "." + colCoins + " RETURNING " + colCoins)

	return r.scanCoins(ctx, query)
}

func (r *PostgresLedger) Credit(ctx context.Context, userID string, delta float64) (float64, error) {
	query := r.qb.Insert(accountsTable).
		Columns(colID, colCoins).
		Values(userID, r.defaultBalance+delta).
		Suffix("ON CONFLICT ("+colID+") DO UPDATE SET "+colCoins+" = "+accountsTable+"."+colCoins+" + ? RETURNING "+colCoins, delta)

	return r.scanCoins(ctx, query)
}

// Debit only updates a row whose balance covers amount, so concurrent debits cannot
// overdraw it.
func (r *PostgresLedger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	if _, err := r.Get(ctx, userID); err != nil {
		return 0, err
	}

	query := r.qb.Update(accountsTable).
		Set(colCoins, sq.Expr(colCoins+" - ?", amount)).
		Where(sq.Eq{colID: userID}).
		Where(sq.GtOrEq{colCoins: amount}).
		Suffix("RETURNING " + colCoins)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var coins float64
	err = r.dbc.QueryRow(ctx, sqlStr, args...).Scan(&coins)
	if errors.Is(err, pgx.ErrNoRows) {
		balance, _, lookupErr := r.Lookup(ctx, userID)
		if lookupErr != nil {
			return 0, lookupErr
		}
		return balance, fmt.Errorf("%w: have %.2f, need %.2f", ErrInsufficientFunds, balance, amount)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}

	return coins, nil
}

func (r *PostgresLedger) scanCoins(ctx context.Context, query sq.InsertBuilder) (float64, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var coins float64
	if err := r.dbc.QueryRow(ctx, sqlStr, args...).Scan(&coins); err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	return coins, nil
}

func (r *PostgresLedger) DeleteAccount(ctx context.Context, userID string) error {
	query := r.qb.Delete(accountsTable).Where(sq.Eq{colID: userID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.dbc.Exec(ctx, sqlStr, args...)
	return err
}
