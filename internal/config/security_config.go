package config

import "time"

type Security struct {
	// SigningSecret signs every session credential. Changing it invalidates all of them.
	SigningSecret string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	LoginStateTTL time.Duration `env:"LOGIN_STATE_TTL" envDefault:"10m"`
}
