package main

import (
	"os"

	"horse.fit/translationtower/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
