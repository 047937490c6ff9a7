package resource

import (
	"net/url"
	"strconv"
)

// Scheme is the URI scheme of all resources served by this pipeline.
const Scheme = "waha"

func queryString(values url.Values, key, fallback string) string {
	if v := values.Get(key); v != "" {
		return v
	}
	return fallback
}

func queryInt(values url.Values, key string, fallback int) int {
	v := values.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryInt64(values url.Values, key string) int64 {
	n, err := strconv.ParseInt(values.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func queryBool(values url.Values, key string) *bool {
	v := values.Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
