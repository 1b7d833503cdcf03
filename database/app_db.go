package database

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"
)

var AppDB *sql.DB

// InitAppDB opens the application database (messages, assignments).
func InitAppDB(appDbURL string) {
	db, err := sql.Open("postgres", appDbURL)
	if err != nil {
		log.Fatal("Failed to connect app DB:", err)
	}
	AppDB = db
	if err := AppDB.Ping(); err != nil {
		log.Fatal("Failed to ping app DB:", err)
	}
	log.Println("App DB connected successfully")
}
