// Package cache persists normalized OSV responses keyed by
// (ecosystem, name, version) with a TTL.
package cache

import (
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/therickybobbeh/depscan/internal/model"
)

// DefaultTTL bounds how long a cached response is considered fresh.
const DefaultTTL = 24 * time.Hour

// Entry is one cached lookup result.
type Entry struct {
	ID         uint   `gorm:"primaryKey"`
	CacheKey   string `gorm:"uniqueIndex;size:512"`
	Ecosystem  string `gorm:"size:16"`
	Name       string `gorm:"size:256"`
	Version    string `gorm:"size:128"`
	VulnsJSON  string
	FetchedAt  time.Time
	TTLSeconds int
}

func (Entry) TableName() string { return "vuln_cache" }

// Stats summarizes the cache contents.
type Stats struct {
	Entries   int64 `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
}

// Store is a durable map of package coordinates to vulnerability sets.
// Get and Put failures never propagate to callers beyond a log line; a
// broken cache degrades to always-miss. The maintenance methods return
// their errors.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewStore migrates the cache table and returns a store.
func NewStore(db *gorm.DB, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Store{db: db, ttl: ttl}, nil
}

func key(eco model.Ecosystem, name, version string) string {
	return string(eco) + "|" + eco.NormalizePackageName(name) + "|" + version
}

// Get looks up a coordinate. fresh means the entry is within TTL; stale
// means an expired entry exists and may serve as a fallback when the
// upstream is unavailable.
func (s *Store) Get(eco model.Ecosystem, name, version string) (vulns []model.Vuln, fresh bool, stale bool) {
	var entry Entry
	err := s.db.Where("cache_key = ?", key(eco, name, version)).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, false
	}
	if err != nil {
		slog.Warn("cache get failed", "error", err)
		return nil, false, false
	}
	if err := json.Unmarshal([]byte(entry.VulnsJSON), &vulns); err != nil {
		slog.Warn("cache entry corrupt", "key", entry.CacheKey, "error", err)
		return nil, false, false
	}
	ttl := time.Duration(entry.TTLSeconds) * time.Second
	if time.Since(entry.FetchedAt) <= ttl {
		return vulns, true, false
	}
	return vulns, false, true
}

// Put stores a result, replacing any previous entry for the key. The upsert
// keeps concurrent writers from ever exposing a torn value.
func (s *Store) Put(eco model.Ecosystem, name, version string, vulns []model.Vuln) {
	payload, err := json.Marshal(vulns)
	if err != nil {
		slog.Warn("cache put marshal failed", "error", err)
		return
	}
	entry := Entry{
		CacheKey:   key(eco, name, version),
		Ecosystem:  string(eco),
		Name:       eco.NormalizePackageName(name),
		Version:    version,
		VulnsJSON:  string(payload),
		FetchedAt:  time.Now().UTC(),
		TTLSeconds: int(s.ttl / time.Second),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		slog.Warn("cache put failed", "key", entry.CacheKey, "error", err)
	}
}

// CleanupExpired deletes entries past their TTL and returns the count.
// Expiry arithmetic runs client-side so the query stays portable across
// sqlite and postgres.
func (s *Store) CleanupExpired() (int64, error) {
	var entries []Entry
	if err := s.db.Select("id", "fetched_at", "ttl_seconds").Find(&entries).Error; err != nil {
		return 0, err
	}
	var expired []uint
	now := time.Now().UTC()
	for _, e := range entries {
		if now.Sub(e.FetchedAt) > time.Duration(e.TTLSeconds)*time.Second {
			expired = append(expired, e.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	res := s.db.Delete(&Entry{}, expired)
	return res.RowsAffected, res.Error
}

// Clear removes every entry.
func (s *Store) Clear() error {
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
}

// GetStats reports entry count and payload size.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	if err := s.db.Model(&Entry{}).Count(&stats.Entries).Error; err != nil {
		return stats, err
	}
	row := s.db.Model(&Entry{}).Select("COALESCE(SUM(LENGTH(vulns_json)), 0)").Row()
	if err := row.Scan(&stats.SizeBytes); err != nil {
		return stats, err
	}
	return stats, nil
}

// TTL returns the configured freshness window.
func (s *Store) TTL() time.Duration { return s.ttl }
