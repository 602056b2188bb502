package postgres

import (
	"fmt"
	"strings"
)

const defaultPort = "5432"

type Config struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	DBName   string `toml:"database"`
}

func (c *Config) ConString() string {
	port := c.Port
	if port == "" {
		port = defaultPort
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, port, c.DBName)
}

func (c Config) String() string {
	var sb strings.Builder
	for i := 0; i < len([]rune(c.Password)); i++ {
		sb.WriteString("*")
	}
	c.Password = sb.String()

	return fmt.Sprintf("%#v", c)
}

func (c *Config) IsValid() bool {
	// Port is optional and defaults to 5432.
	if c.User == "" || c.Password == "" || c.Host == "" || c.DBName == "" {
		return false
	}
	return true
}
