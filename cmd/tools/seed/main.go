// Command seed inserts a single tender from flags, replacing the
// scraping pipeline's ingestion path for local development and demos
// (§9 supplemented feature: tender ingestion is out of scope, but a
// one-shot loader is needed to exercise the matcher against real rows).
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/models"
)

func main() {
	sourceURL := flag.String("source-url", "", "unique source URL for the tender")
	title := flag.String("title", "", "tender title")
	description := flag.String("description", "", "raw description")
	category := flag.String("category", "", "sector category, e.g. construction")
	region := flag.String("region", "national", "region code")
	budget := flag.Float64("budget", 0, "budget amount")
	currency := flag.String("currency", "ETB", "budget currency")
	language := flag.String("language", "english", "tender language")
	organization := flag.String("organization", "", "publishing organization")
	deadlineDays := flag.Int("deadline-days", 30, "days from now until the deadline")
	highlights := flag.String("highlights", "", "comma-separated highlight phrases")
	flag.Parse()

	if *sourceURL == "" || *title == "" {
		log.Fatal("both -source-url and -title are required")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	store := db.NewStore(pool)

	deadline := time.Now().Add(time.Duration(*deadlineDays) * 24 * time.Hour)
	var highlightList []string
	if *highlights != "" {
		for _, h := range strings.Split(*highlights, ",") {
			h = strings.TrimSpace(h)
			if h != "" {
				highlightList = append(highlightList, h)
			}
		}
	}

	tender := models.Tender{
		SourceURL:        *sourceURL,
		Title:            *title,
		RawDescription:   *description,
		CleanDescription: *description,
		Highlights:       highlightList,
		Category:         *category,
		Region:           *region,
		BudgetAmount:     *budget,
		BudgetCurrency:   *currency,
		Language:         *language,
		Deadline:         &deadline,
		Status:           models.TenderPublished,
		PublishedAt:      time.Now(),
		Organization:     *organization,
	}

	created, err := store.CreateTender(ctx, tender)
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	log.Printf("seeded tender %s (%q)", created.ID, created.Title)
}
