package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/database"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/repository"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "configs/config.dev.yaml", "config file path")
	dryRun := flag.Bool("dry-run", false, "list tables that would be migrated without executing")
	purge := flag.Bool("purge-expired", false, "delete expired status posts after migrating")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	if files := config.LoadDotEnv(); len(files) == 0 {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}

	db, err := database.Open(cfg.Database, logLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	log.Printf("Connected to %s", cfg.Database.Driver)

	if *dryRun {
		for _, model := range migration.Models() {
			stmt := &gorm.Statement{DB: db}
			if err := stmt.Parse(model); err != nil {
				log.Fatalf("parse model: %v", err)
			}
			fmt.Printf("  %-20s exists=%v\n", stmt.Schema.Table, db.Migrator().HasTable(model))
		}
		return
	}

	start := time.Now()
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration completed in %s", time.Since(start).Round(time.Millisecond))

	if *purge {
		n, err := repository.NewStatusRepository(db).DeleteExpired(context.Background(), time.Now().UTC())
		if err != nil {
			log.Fatalf("Purge failed: %v", err)
		}
		log.Printf("Purged %d expired status posts", n)
	}
}
