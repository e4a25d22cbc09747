// Command groupvectors checks a binary tree-math test-vector file
// against internal/treemath, printing a PASS/FAIL summary line per
// file.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/kindlyrobotics/ratchet/internal/treemath"
)

func main() {
	path := getEnv("GROUPVECTORS_FILE", "vectors/tree-math.bin")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	log.Printf("[DEBUG] checking tree-math vectors in %s", path)
	if err := runVectors(path); err != nil {
		log.Printf("[ERROR] %s: FAIL (%v)", path, err)
		os.Exit(1)
	}
	log.Printf("[INFO] %s: PASS", path)
}

func runVectors(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	tv, err := treemath.ReadTestVectors(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := tv.Check(); err != nil {
		return fmt.Errorf("check %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
