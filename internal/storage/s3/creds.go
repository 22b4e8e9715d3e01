package s3

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// KeyFile is the JSON service-account key uploaded by the user. It carries
// everything needed to reach the object store backing a warehouse bucket.
type KeyFile struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
	UseSSL          bool   `json:"use_ssl"`
}

func LoadKeyFile(path string) (KeyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeyFile{}, fmt.Errorf("read credential key file: %w", err)
	}
	var key KeyFile
	if err := json.Unmarshal(raw, &key); err != nil {
		return KeyFile{}, fmt.Errorf("parse credential key file: %w", err)
	}
	if strings.TrimSpace(key.Endpoint) == "" {
		return KeyFile{}, fmt.Errorf("credential key file: endpoint is required")
	}
	if strings.TrimSpace(key.AccessKeyID) == "" || strings.TrimSpace(key.SecretAccessKey) == "" {
		return KeyFile{}, fmt.Errorf("credential key file: access_key_id and secret_access_key are required")
	}
	return key, nil
}
