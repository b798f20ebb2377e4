package postgres

import (
	"fmt"

	"streamwire/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	switch c := config.(type) {
	case *Config:
		return NewAdapter(c)
	case storage.GenericConfig:
		return NewAdapter(&Config{
			Host:     c.GetString("host"),
			Port:     c.GetString("port"),
			Database: c.GetString("database"),
			Username: c.GetString("username"),
			Password: c.GetString("password"),
			SSLMode:  c.GetString("sslmode"),
		})
	default:
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
