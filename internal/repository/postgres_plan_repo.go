package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/subauth/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用したプランリポジトリ。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
func (r *PostgresPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	p := &model.Plan{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, price_cents, created_at
		 FROM subscription_plans WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

// List は全プランを価格昇順で返す。
func (r *PostgresPlanRepo) List(ctx context.Context) ([]*model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, price_cents, created_at
		 FROM subscription_plans ORDER BY price_cents, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		p := &model.Plan{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return plans, nil
}

// Create はプランを作成する。
func (r *PostgresPlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscription_plans (id, name, description, price_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		plan.ID, plan.Name, plan.Description, plan.PriceCents, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PlanRepository = (*PostgresPlanRepo)(nil)
