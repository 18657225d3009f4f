// Package config loads typed configuration from the environment.
//
// Every component declares its own struct with `env` tags (redis.Config,
// pg.Config, queue.Config, ...). Load parses it with caarlos0/env, after an
// optional .env file has been read through godotenv, and caches the result per
// type so repeated loads are cheap and consistent.
//
//	var app config.App
//	config.MustLoad(&app)
//
//	var qcfg queue.Config
//	if err := config.Load(&qcfg); err != nil {
//		return err
//	}
//
// Use LoadEnv for extra .env files that must exist, and ResetCache in tests
// that change the environment between loads.
package config
