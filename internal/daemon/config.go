package daemon

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRoute      = "edits.main"
	defaultSeenCap    = 4096
	defaultSeenTTLSec = 600
)

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envStr(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return "", false
	}
	return raw, true
}

func routeKey() string {
	if v, ok := envStr("EDITMESH_ROUTE"); ok {
		return v
	}
	return defaultRoute
}

func seenCap() int {
	if v, ok := envInt("EDITMESH_SEEN_CAP"); ok && v > 0 {
		return v
	}
	return defaultSeenCap
}

func seenTTL() time.Duration {
	if v, ok := envInt("EDITMESH_SEEN_TTL_SEC"); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	return defaultSeenTTLSec * time.Second
}
