package main

import (
	"log"

	factoringd "factorvault/services/factoringd"
)

func main() {
	if err := factoringd.Main(); err != nil {
		log.Fatalf("factoringd: %v", err)
	}
}
