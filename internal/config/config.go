package config

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	StoreConfig
	UpstreamConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Store
	Upstream
}

func New() Config {
	return mainConfig{}
}
