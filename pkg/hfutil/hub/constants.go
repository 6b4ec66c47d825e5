package hub

import (
	"os"
	"strings"
	"time"
)

var envVarsTrueValues = map[string]bool{
	"1":    true,
	"ON":   true,
	"YES":  true,
	"TRUE": true,
}

func isTrue(value string) bool {
	return envVarsTrueValues[strings.ToUpper(value)]
}

const (
	DefaultEndpoint = "https://huggingface.co"
	DefaultRevision = "main"

	DefaultRequestTimeout = 10 * time.Second
	DefaultEtagTimeout    = 10 * time.Second
	DownloadTimeout       = 10 * time.Minute
	DefaultMaxRetries     = 5
	DefaultRetryInterval  = 10 * time.Second
	maxBackoff            = 30 * time.Second

	DefaultUserAgent = "ome-mtl-hub/1.0.0"

	RepoTypeModel = "model"

	HuggingfaceHeaderXRepoCommit = "X-Repo-Commit"
	HuggingfaceHeaderXLinkedEtag = "X-Linked-Etag"
	HuggingfaceHeaderXLinkedSize = "X-Linked-Size"
	AuthorizationHeader          = "Authorization"
	UserAgentHeader              = "User-Agent"

	incompleteSuffix = ".incomplete"
)

// GetHfToken returns the token from HF_TOKEN or the legacy HUGGING_FACE_HUB_TOKEN.
func GetHfToken() string {
	if token := os.Getenv("HF_TOKEN"); token != "" {
		return token
	}
	return os.Getenv("HUGGING_FACE_HUB_TOKEN")
}

// GetEndpoint honors HF_ENDPOINT.
func GetEndpoint() string {
	if endpoint := os.Getenv("HF_ENDPOINT"); endpoint != "" {
		return strings.TrimRight(endpoint, "/")
	}
	return DefaultEndpoint
}

// IsOfflineMode reports whether HF_HUB_OFFLINE is set.
func IsOfflineMode() bool {
	return isTrue(os.Getenv("HF_HUB_OFFLINE"))
}
