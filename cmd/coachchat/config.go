package main

import (
	"github.com/go-go-golems/coachchat/pkg/config"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
