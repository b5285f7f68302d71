package config

import "errors"

var (
	errSecretsMissing        = errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	errAccessSecretTooShort  = errors.New("JWT_ACCESS_SECRET is shorter than 32 bytes")
	errRefreshSecretTooShort = errors.New("JWT_REFRESH_SECRET is shorter than 32 bytes")
	errSecretsEqual          = errors.New("access and refresh secrets must differ")
)
