package archive

import "net/http"

// WithTransport routes S3 requests through rt
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}
