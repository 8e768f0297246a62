// Package config provides configuration management for the listing harvester.
//
// It utilizes Viper for loading configuration from environment variables
// and an optional .env file. Defaults come from the `default` struct tags of
// each section.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Log: Logging level and format
//   - Database: destination database driver and connection details
//   - Storage: S3/MinIO credentials and bucket settings
//   - Harvest: worker count, retry attempts and backoff
//   - Source: company list and job page endpoints, rate limit
//   - Checkpoint: progress backend (memory, file, database, redis)
//   - Artifacts: run dataset backend (dir, bucket)
//   - Sync: batch size, mode and destination tables
//   - Redis, Events: optional redis and Kafka connections
//   - Server: status API port and API key
//
// Environment keys replace dots with underscores, so harvest.workers is read
// from HARVEST_WORKERS.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Harvest.Workers)
package config
