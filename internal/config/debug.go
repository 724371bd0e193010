package config

import (
	"os"
	"strconv"
	"strings"
)

// overlayEnv applies DOCCHAT_DEBUG_* variables. Boolean switches accept any strconv.ParseBool
// form; unparsable values leave the file setting alone.
func (d DebugConfig) overlayEnv() DebugConfig {
	if on, ok := envBool("DOCCHAT_DEBUG_LOG_REQUESTS"); ok {
		d.LogRequests = on
	}
	if on, ok := envBool("DOCCHAT_DEBUG_LOG_RESPONSES"); ok {
		d.LogResponses = on
	}
	if dir := strings.TrimSpace(os.Getenv("DOCCHAT_DEBUG_LOG_DIR")); dir != "" {
		d.LogDirectory = dir
	}
	return d
}

// Enabled reports whether any provider traffic is written to disk.
func (d DebugConfig) Enabled() bool {
	return d.LogDirectory != "" && (d.LogRequests || d.LogResponses)
}

func envBool(key string) (bool, bool) {
	raw, set := os.LookupEnv(key)
	if !set {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}
