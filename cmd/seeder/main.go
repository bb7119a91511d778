package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/quocanhngo/eventspot/internal/config"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/repository"
	"github.com/quocanhngo/eventspot/migrations"
	"github.com/quocanhngo/eventspot/pkg/auth"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type demoUser struct {
	id    string
	name  string
	prefs model.Preferences
}

var demoUsers = []demoUser{
	{id: "user-1", name: "Ana"},
	{id: "user-2", name: "Bruno", prefs: model.Preferences{NewEvents: model.Bool(true)}},
	{id: "user-3", name: "Carla", prefs: model.Preferences{ChatMessages: model.Bool(false)}},
	{id: "user-4", name: "Diego", prefs: model.Preferences{EventReminders: model.Bool(false), EventUpdates: model.Bool(false)}},
}

func main() {
	reset := flag.Bool("reset", false, "revert all migrations before seeding")
	flag.Parse()

	cfg := config.Load()

	if *reset {
		if err := migrations.Reset(cfg.DB.URL()); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Fatalf("❌ %v", err)
	}

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	ctx := context.Background()
	devices := repository.NewDeviceRepository(db)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	log.Printf("🌱 Seeding %d device registrations...", len(demoUsers))
	for _, u := range demoUsers {
		token := fmt.Sprintf("demo-token-%s", u.id)
		if err := devices.Upsert(ctx, u.id, token, u.prefs); err != nil {
			log.Printf("❌ Failed to seed %s: %v", u.id, err)
			continue
		}

		jwt, err := jwtManager.GenerateToken(u.id, u.name)
		if err != nil {
			log.Printf("❌ Failed to sign token for %s: %v", u.id, err)
			continue
		}
		log.Printf("✅ %s (%s) | device token: %s", u.id, u.name, token)
		fmt.Printf("%s\t%s\n", u.id, jwt)
	}

	log.Println("🎉 Seeding completed!")
}
