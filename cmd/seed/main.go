// Command main runs the database seeder for Reverie.
package main

import (
	"flag"
	"log"

	"reverie/internal/config"
	"reverie/internal/database"
	"reverie/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of users to create")
	dreamsPerUser := flag.Int("dreams", 25, "Number of dreams per user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *shouldClean {
		if err := seed.ClearAll(db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		log.Println("Database cleaned")
	}

	factory := seed.NewFactory(db)
	total := 0
	for i := 0; i < *numUsers; i++ {
		user, err := factory.CreateUser()
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		for j := 0; j < *dreamsPerUser; j++ {
			if _, err := factory.CreateDream(user); err != nil {
				log.Fatalf("Failed to create dream: %v", err)
			}
			total++
		}
	}

	log.Printf("Seeded %d users with %d dreams", *numUsers, total)
}
