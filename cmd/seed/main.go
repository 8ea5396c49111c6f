// Command seed fills the backend with fake profiles and posts and announces each insert.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"animelight/internal/cache"
	"animelight/internal/config"
	"animelight/internal/database"
	"animelight/internal/models"
	"animelight/internal/notifications"
	"animelight/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of profiles to create")
	numPosts := flag.Int("posts", 50, "Number of posts to create")
	maxImages := flag.Int("images", 3, "Maximum images per post")
	announce := flag.Bool("announce", true, "Publish an insert event for every post")
	flag.Parse()

	log.Println("Feed Seeder")
	log.Printf("Target: %d profiles, %d posts, announce=%v\n", *numUsers, *numPosts, *announce)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	repo := repository.NewFeedRepository(db)

	var rdb *redis.Client
	if *announce {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Redis unavailable, inserts will not be announced: %v", err)
		} else {
			defer func() { _ = rdb.Close() }()
		}
	}
	pub := notifications.NewPublisher(rdb, cfg.RealtimeTopic)

	profiles := make([]models.ProfileRow, 0, *numUsers)
	for i := 0; i < *numUsers; i++ {
		p := models.ProfileRow{
			ID:       uuid.NewString(),
			Username: gofakeit.Username(),
			Image:    fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
		}
		if err := repo.UpsertProfile(ctx, &p); err != nil {
			log.Fatalf("Profile seeding failed: %v", err)
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		log.Fatal("At least one profile is required")
	}

	// Oldest first so the last post seeded is the newest in the feed.
	start := time.Now().UTC().Add(-time.Duration(*numPosts) * time.Hour)
	for i := 0; i < *numPosts; i++ {
		author := profiles[gofakeit.Number(0, len(profiles)-1)]
		body := "<p>" + gofakeit.Paragraph(1, 2, 12, " ") + "</p>"
		row := &models.PostRow{
			Body:      &body,
			CreatedAt: start.Add(time.Duration(i) * time.Hour),
			UserID:    author.ID,
		}

		n := 0
		if *maxImages > 0 {
			n = gofakeit.Number(0, *maxImages)
		}
		images := make([]models.PostImageRow, n)
		for j := range images {
			images[j] = models.PostImageRow{
				ImageURL: fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID()),
				Caption:  gofakeit.Word(),
			}
		}

		if err := repo.CreatePost(ctx, row, images); err != nil {
			log.Fatalf("Post seeding failed: %v", err)
		}

		record := models.RealtimePostRecord{
			ID:        row.ID,
			Body:      row.Body,
			CreatedAt: row.CreatedAt,
			UserID:    row.UserID,
			Profiles:  models.ProfileRef{Profile: &author},
		}
		if err := pub.PublishInsert(ctx, "posts", record); err != nil {
			log.Printf("Announce failed for post %s: %v", row.ID, err)
		}
	}

	log.Printf("All done! Seeded %d profiles and %d posts.", len(profiles), *numPosts)
}
