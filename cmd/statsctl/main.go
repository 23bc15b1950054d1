package main

import (
	"os"

	"github.com/blogpulse/internal/cli"
	"github.com/blogpulse/internal/config"
)

func main() {
	config.LoadDotEnv()
	if err := cli.Run(); err != nil {
		os.Exit(1)
	}
}
