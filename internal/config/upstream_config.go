package config

type UpstreamConfig interface {
	GetUpstreamRequestTokenURL() string
	GetUpstreamAuthorizeURL() string
	GetUpstreamAccessTokenURL() string
	GetUpstreamAPIURL() string
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamRequestTokenURL() string {
	return GetEnv("UPSTREAM_REQUEST_TOKEN_URL", "https://authentication.fatsecret.com/oauth/request_token")
}

func (Upstream) GetUpstreamAuthorizeURL() string {
	return GetEnv("UPSTREAM_AUTHORIZE_URL", "https://authentication.fatsecret.com/oauth/authorize")
}

func (Upstream) GetUpstreamAccessTokenURL() string {
	return GetEnv("UPSTREAM_ACCESS_TOKEN_URL", "https://authentication.fatsecret.com/oauth/access_token")
}

func (Upstream) GetUpstreamAPIURL() string {
	return GetEnv("UPSTREAM_API_URL", "https://platform.fatsecret.com/rest/server.api")
}
