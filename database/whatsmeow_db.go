package database

import (
	"context"
	"log"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var Container *sqlstore.Container

// InitWhatsmeow opens the whatsmeow device store. It shares the postgres
// server with the app DB but owns its own tables.
func InitWhatsmeow(dbURL string) {
	container, err := sqlstore.New(context.Background(), "postgres", dbURL, waLog.Stdout("Database", "ERROR", true))
	if err != nil {
		log.Fatal("Failed to connect whatsmeow DB:", err)
	}
	Container = container
	log.Println("Whatsmeow DB connected successfully")
}
