package config

type Config struct {
	SecretKey string
}
