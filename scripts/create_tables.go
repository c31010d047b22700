package main

import (
	"fmt"
	"os"
	"path/filepath"

	"svj-registry/internal/config"
	"svj-registry/internal/database"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	sqlFile := filepath.Join("db", "schema.sql")
	if len(os.Args) > 1 {
		sqlFile = os.Args[1]
	}
	sqlBytes, err := os.ReadFile(sqlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read SQL file: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.Exec(string(sqlBytes)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute SQL: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ svj-registry tables created successfully!")
}
