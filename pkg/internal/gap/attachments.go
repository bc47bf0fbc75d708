package gap

import (
	"net/url"
	"strings"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
)

// NewAttachmentResolver rewrites server-relative attachment paths against
// endpoint. Absolute URLs and local blob handles are returned untouched.
func NewAttachmentResolver(endpoint string) services.URLResolver {
	base := strings.TrimSuffix(endpoint, "/")
	return func(path string) string {
		if len(path) == 0 || len(base) == 0 || strings.HasPrefix(path, "blob:") {
			return path
		}
		if parsed, err := url.Parse(path); err == nil && parsed.IsAbs() {
			return path
		}
		if !strings.HasPrefix(path, "/") {
			path = "/attachments/" + path
		}
		return base + path
	}
}
