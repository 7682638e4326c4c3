package app

import (
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/utils"
)

type Config struct {
	Address     string
	Environment string
	Version     string
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	environment := utils.GetEnv("ENV", "development", log)
	version := utils.GetEnv("APP_VERSION", "dev", log)
	return Config{
		Address:     ":" + port,
		Environment: environment,
		Version:     version,
	}
}
