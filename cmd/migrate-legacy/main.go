// Command migrate-legacy backfills email_normalized for accounts created
// before the normalized column existed. The API assumes every row has it,
// so run this once against a migrated database before cutting traffic over.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/swg-labs/smssend-api/internal/security"
	"github.com/swg-labs/smssend-api/pkg/config"
	"github.com/swg-labs/smssend-api/pkg/database"
)

type legacyRow struct {
	ID              string `db:"id"`
	Email           string `db:"email"`
	EmailNormalized string `db:"email_normalized"`
}

func main() {
	var (
		dryRun    bool
		batchSize int
		timeout   time.Duration
	)

	flag.BoolVar(&dryRun, "dry-run", false, "report rows that would change without writing")
	flag.IntVar(&batchSize, "batch-size", 500, "rows fetched per pass")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	updated, scanned, err := backfill(ctx, db, batchSize, dryRun)
	if err != nil {
		log.Fatalf("backfill failed after %d rows: %v", updated, err)
	}

	if dryRun {
		log.Printf("dry run: %d of %d rows need normalization", updated, scanned)
		return
	}
	log.Printf("done: normalized %d of %d rows", updated, scanned)
}

func backfill(ctx context.Context, db *sqlx.DB, batchSize int, dryRun bool) (updated, scanned int, err error) {
	// Keyset pagination on id keeps each pass cheap regardless of table size.
	lastID := ""
	for {
		var rows []legacyRow
		err = db.SelectContext(ctx, &rows, `
			SELECT id, email, COALESCE(email_normalized, '') AS email_normalized
			FROM users
			WHERE id > $1
			ORDER BY id
			LIMIT $2`, lastID, batchSize)
		if err != nil {
			return updated, scanned, err
		}
		if len(rows) == 0 {
			return updated, scanned, nil
		}

		for _, row := range rows {
			scanned++
			normalized := security.NormalizeEmail(row.Email)
			if row.EmailNormalized == normalized {
				continue
			}

			if dryRun {
				log.Printf("would normalize %s: %q -> %q", row.ID, row.EmailNormalized, normalized)
				updated++
				continue
			}

			_, err = db.ExecContext(ctx, `
				UPDATE users SET email_normalized = $1 WHERE id = $2`, normalized, row.ID)
			if err != nil {
				return updated, scanned, err
			}
			updated++
		}

		lastID = rows[len(rows)-1].ID
	}
}
