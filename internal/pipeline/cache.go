package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/formocr/internal/cache"
)

// fingerprint identifies the settings that influence a result.
func (p *Pipeline) fingerprint() string {
	d := p.cfg.Detector
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s|%v|%v|%d|%dx%d|%v|%d|%v|%s|%v",
		d.ModelPath, d.ObjectnessThreshold, d.NMSThreshold, d.MaxDetections,
		d.MinWidth, d.MinHeight, d.Coverage.MaxCoverage, d.Coverage.CrowdedCount,
		d.Coverage.CrowdedCoverage, p.OCR.Name(), p.cfg.OCR.Normalize)
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func (p *Pipeline) cacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return cache.Key("extract", p.fingerprint(), hex.EncodeToString(sum[:]))
}

func (p *Pipeline) cacheGet(ctx context.Context, key string) (*Result, bool) {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.Warn("cache get failed", "error", err)
		}
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("discarding corrupt cache entry", "key", key, "error", err)
		_ = p.cache.Delete(ctx, key)
		return nil, false
	}
	res.Processing.Cached = true
	return &res, true
}

func (p *Pipeline) cachePut(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("cache encode failed", "error", err)
		return
	}
	if err := p.cache.Set(ctx, key, data, p.cfg.Cache.TTL()); err != nil {
		slog.Warn("cache set failed", "error", err)
	}
}

// PurgeCache drops every cached extraction.
func (p *Pipeline) PurgeCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.DeleteByPrefix(ctx, cache.Key("extract", ""))
}
