package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spigell/referral-matcher/internal/scoring"
)

//go:embed schema.sql
var schema string

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres reads records from PostgreSQL.
type Postgres struct {
	db   querier
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &Postgres{db: pool, pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Migrate creates the record tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Profile(ctx context.Context, id string) (scoring.Profile, error) {
	var out scoring.Profile
	err := p.db.QueryRow(ctx,
		`SELECT id, name, skills, past_companies, domains, industries,
		        experience_level, years_of_experience, location
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.Name, &out.Skills, &out.PastCompanies, &out.Domains, &out.Industries,
		&out.ExperienceLevel, &out.YearsOfExperience, &out.Location)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scoring.Profile{}, fmt.Errorf("profile %q: %w", id, ErrNotFound)
		}
		return scoring.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return out, nil
}

func (p *Postgres) Job(ctx context.Context, id string) (scoring.JobPosting, error) {
	var out scoring.JobPosting
	err := p.db.QueryRow(ctx,
		`SELECT id, title, company, skills, domains, industry,
		        experience_level, description, location, remote
		 FROM job_postings WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.Title, &out.Company, &out.Skills, &out.Domains, &out.Industry,
		&out.ExperienceLevel, &out.Description, &out.Location, &out.Remote)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scoring.JobPosting{}, fmt.Errorf("job %q: %w", id, ErrNotFound)
		}
		return scoring.JobPosting{}, fmt.Errorf("get job: %w", err)
	}
	return out, nil
}
