package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/md-rashed-zaman/vetbook/libs/config"
	"github.com/md-rashed-zaman/vetbook/libs/db"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/migrations"
)

// usage: migrate [up | down <steps> | force <version> | version]
func main() {
	config.LoadDotEnv()
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		log.Fatal(err)
	}

	mg, err := db.NewMigrator(databaseURL, migrations.FS)
	if err != nil {
		log.Fatal(err)
	}
	defer mg.Close()

	cmd := "up"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "up":
		err = mg.Up()
	case "down", "force":
		if len(os.Args) < 3 {
			log.Fatalf("%s needs a number", cmd)
		}
		n, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			log.Fatalf("invalid number: %v", convErr)
		}
		if cmd == "down" {
			err = mg.Down(n)
		} else {
			err = mg.Force(n)
		}
	case "version":
		v, dirty, verr := mg.Version()
		if verr != nil {
			log.Fatal(verr)
		}
		fmt.Printf("version %d dirty=%t\n", v, dirty)
		return
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("migrate %s complete\n", cmd)
}
