package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billingcore/internal/clock"
	"go.uber.org/zap"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength        = 255
	defaultLockTTL      = 2 * time.Minute
	defaultMaxBodyBytes = 1 << 20
)

type MiddlewareConfig struct {
	Store Store
	// TTL returns how long completed responses are kept; read per request
	// so configuration reloads apply.
	TTL     func() time.Duration
	LockTTL time.Duration
	// Scope identifies the caller so equal keys from different callers never collide.
	Scope   func(c *gin.Context) string
	OnError func(c *gin.Context, err error)
	Log     *zap.Logger
	// MaxBodyBytes caps the buffered request body; defaults to 1 MiB.
	MaxBodyBytes int64
	Clock        clock.Clock
}

// Middleware deduplicates requests carrying the Idempotency-Key header.
// Requests without the header pass through untouched. A retry with the same
// key and body gets the stored response; a different body is rejected with
// ErrKeyReused and a retry while the first request is running gets ErrInFlight.
// 5xx responses are not stored so the client can retry them.
func Middleware(cfg MiddlewareConfig) gin.HandlerFunc {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystemClock()
	}
	log := cfg.Log.Named("idempotency")
	onError := cfg.OnError
	if onError == nil {
		onError = func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": err.Error()})
		}
	}

	return func(c *gin.Context) {
		rawKey := strings.TrimSpace(c.GetHeader(HeaderKey))
		if rawKey == "" || cfg.Store == nil {
			c.Next()
			return
		}
		if len(rawKey) > maxKeyLength {
			onError(c, ErrKeyTooLong)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				err = ErrBodyTooLarge
			}
			onError(c, err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		scope := ""
		if cfg.Scope != nil {
			scope = cfg.Scope(c)
		}
		key := StorageKey(scope, c.Request.Method, c.Request.URL.Path, rawKey)
		fingerprint := Fingerprint(body)

		if rec, ok, err := cfg.Store.Get(ctx, key); err != nil {
			log.Warn("lookup failed", zap.Error(err))
			onError(c, err)
			return
		} else if ok {
			replay(c, rec, fingerprint, onError)
			return
		}

		token, acquired, err := cfg.Store.Lock(ctx, key, cfg.LockTTL)
		if err != nil {
			log.Warn("lock failed", zap.Error(err))
			onError(c, err)
			return
		}
		if !acquired {
			// the holder may have finished between Get and Lock
			if rec, ok, _ := cfg.Store.Get(ctx, key); ok {
				replay(c, rec, fingerprint, onError)
				return
			}
			onError(c, ErrInFlight)
			return
		}
		defer func() {
			if err := cfg.Store.Unlock(ctx, key, token); err != nil {
				log.Warn("unlock failed", zap.Error(err))
			}
		}()

		writer := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		ttl := defaultExpiration
		if cfg.TTL != nil {
			if v := cfg.TTL(); v > 0 {
				ttl = v
			}
		}
		rec := Record{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.buf.Bytes(),
			CreatedAt:   cfg.Clock.Now().UTC(),
		}
		if err := cfg.Store.Save(ctx, key, rec, ttl); err != nil {
			log.Warn("save failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, rec Record, fingerprint string, onError func(*gin.Context, error)) {
	if rec.Fingerprint != fingerprint {
		onError(c, ErrKeyReused)
		return
	}
	c.Header(HeaderReplayed, "true")
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(rec.Status, contentType, rec.Body)
	c.Abort()
}

// StatusFor maps middleware errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrKeyReused):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrKeyTooLong):
		return http.StatusBadRequest
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusServiceUnavailable
	}
}

// StorageKey hashes the caller scope, route and client key into one store key.
func StorageKey(scope, method, path, key string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + method + "\x00" + path + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
