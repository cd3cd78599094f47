package config

type SecurityConfig interface {
	GetMasterKeyHex() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetMasterKeyHex returns the symmetric key used to seal records at rest.
// Must be exactly 64 hexadecimal characters (a 256-bit key).
func (Security) GetMasterKeyHex() string {
	return GetEnv("BROKER_MASTER_KEY", "")
}
