package config

// App holds process-wide settings shared by every command.
type App struct {
	Name      string `env:"APP_NAME" envDefault:"campusjobs"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL"`  // debug, info, warn or error; empty picks by environment
	LogFormat string `env:"LOG_FORMAT"` // json or text; empty picks by environment
}

// IsProduction reports whether the process runs with APP_ENV=production.
func (a App) IsProduction() bool {
	return a.Env == "production"
}
