package config

import "time"

// NewClientForTest creates a Client config for testing purposes
func NewClientForTest(apiURL, apiKey, apiKeyHeader string, timeout time.Duration) *Client {
	return &Client{
		apiURL:       apiURL,
		apiKey:       apiKey,
		apiKeyHeader: apiKeyHeader,
		timeout:      timeout,
		burst:        1,
	}
}

// NewCacheForTest creates a Cache config for testing purposes
func NewCacheForTest(backend, redisURL string) *Cache {
	return &Cache{
		backend:  backend,
		redisURL: redisURL,
	}
}

// NewArchiveForTest creates an Archive config for testing purposes
func NewArchiveForTest(location string) *Archive {
	return &Archive{location: location}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

var Pick = pick[string]
