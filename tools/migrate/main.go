package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gildedshear/platform/libs/config"
	"github.com/gildedshear/platform/libs/db"
	"github.com/gildedshear/platform/libs/runtime"
	"github.com/gildedshear/platform/migrations"
)

// Usage:
//
//	migrate             apply pending migrations
//	migrate force <v>   mark the schema as version v (recovers a dirty state)
func main() {
	logger := runtime.NewLogger("migrate")
	if err := runtime.LoadDotEnv(); err != nil {
		logger.Warn("dotenv load failed", "err", err)
	}

	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}

	force := -1
	if len(os.Args) >= 3 && os.Args[1] == "force" {
		force, err = strconv.Atoi(os.Args[2])
		if err != nil || force < 0 {
			logger.Error("invalid version", "value", os.Args[2])
			os.Exit(2)
		}
	}

	if err := db.Migrate(databaseURL, migrations.FS, force); err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}
	if force >= 0 {
		fmt.Printf("forced version to %d\n", force)
		return
	}
	fmt.Println("migrations complete")
}
