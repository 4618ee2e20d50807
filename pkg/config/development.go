package config

import (
	"os"
	"strconv"
)

func loadDevelopmentConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.DatabaseDebug = true
	if dir := os.Getenv("GALLERY_DATA_DIR"); dir != "" {
		cfg.GalleryDataDir = dir
	}
	if dir := os.Getenv("ZOTERO_DATA_DIR"); dir != "" {
		cfg.ZoteroDataDir = dir
	}
}

func loadTestConfig(cfg *Config) {
	cfg.DatabaseDebug = false
	if dir := os.Getenv("GALLERY_DATA_DIR"); dir != "" {
		cfg.GalleryDataDir = dir
	}
	if dir := os.Getenv("ZOTERO_DATA_DIR"); dir != "" {
		cfg.ZoteroDataDir = dir
	}
}
