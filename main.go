package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/etnz/ggbackup/cli"
)

func main() {
	// GGBACKUP_* settings may come from a .env file in the working directory.
	_ = godotenv.Load()
	os.Exit(cli.Execute())
}
