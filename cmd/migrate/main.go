package main

import (
	"context"
	"fmt"
	"os"

	"books-ledger/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	pool, err := db.NewPool(ctx)
	if err != nil {
		fmt.Printf("Failed to connect to DB: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	path := "migrations/schema.sql"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	sqlFile, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Failed to read sql file: %v\n", err)
		os.Exit(1)
	}

	if _, err := pool.Exec(ctx, string(sqlFile)); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migration successful.")
}
