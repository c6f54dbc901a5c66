package mw

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const cacheStatusHeader = "X-Cache"

type snapshot struct {
	status  int
	headers http.Header
	body    []byte
	expires time.Time
}

// recorder tees the handler's output so it can be replayed later.
type recorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Cache replays 2xx answers to GET and HEAD requests for resources that do
// not depend on the caller. Responses marked Cache-Control: no-store are
// passed through untouched. Every response carries X-Cache (HIT or MISS) and
// a max-age matching the remaining lifetime.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodGet && method != http.MethodHead {
			c.Next()
			return
		}

		key := c.Request.URL.Path
		if v, found := store.Get(key); found {
			replay(c, v.(*snapshot))
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header(cacheStatusHeader, "MISS")
		c.Header("Cache-Control", maxAge(ttl))

		c.Next()

		status := rec.Status()
		if status < 200 || status > 299 || method == http.MethodHead {
			return
		}
		if strings.Contains(rec.Header().Get("Cache-Control"), "no-store") {
			return
		}

		headers := rec.Header().Clone()
		headers.Del(cacheStatusHeader)
		store.Set(key, &snapshot{
			status:  status,
			headers: headers,
			body:    bytes.Clone(rec.buf.Bytes()),
			expires: time.Now().Add(ttl),
		}, ttl)
	}
}

func replay(c *gin.Context, s *snapshot) {
	h := c.Writer.Header()
	for k, v := range s.headers {
		h[k] = v
	}
	h.Set(cacheStatusHeader, "HIT")
	h.Set("Cache-Control", maxAge(time.Until(s.expires)))

	c.Writer.WriteHeader(s.status)
	if c.Request.Method != http.MethodHead {
		c.Writer.Write(s.body)
	}
	c.Abort()
}

func maxAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("public, max-age=%d", int(d.Seconds()))
}
