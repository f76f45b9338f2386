package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/iliyamo/festival-registration/internal/cli"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
