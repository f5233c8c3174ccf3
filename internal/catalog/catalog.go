// Package catalog stores analysed songs, their stems and rendered
// transitions in SQLite.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pion/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "segue.sqlite3"

// ErrNotFound is returned when a song or transition does not exist.
var ErrNotFound = errors.New("not found")

const errDBClientNil = "catalog is nil"

// Catalog is the song and transition store.
type Catalog struct {
	DB  *gorm.DB
	db  *sql.DB
	log logging.LeveledLogger
}

// gormWriter routes gorm's logger through a pion scope.
type gormWriter struct {
	log logging.LeveledLogger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string, log logging.LeveledLogger) (*Catalog, error) {
	if path == "" {
		path = DefaultDBFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(gormWriter{log}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// SQLite allows one writer; a single connection keeps job workers from
	// tripping over each other's locks.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Song{}, &Stem{}, &Transition{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	log.Debugf("catalog open at %s", path)
	return &Catalog{DB: db, db: sqlDB, log: log}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// AddSong registers a song and its stems. A song with the same title and
// artist already present is returned as is, with its existing ID.
func (c *Catalog) AddSong(song *Song) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	var existing Song
	err := c.DB.Where("title = ? AND artist = ?", song.Title, song.Artist).First(&existing).Error
	if err == nil {
		c.log.Infof("song %q already in catalog as %s", song.Title, existing.ID)
		song.ID = existing.ID
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing song: %w", err)
	}

	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	for i := range song.Stems {
		song.Stems[i].SongID = song.ID
	}
	if err := c.DB.Create(song).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if fetchErr := c.DB.Where("title = ? AND artist = ?", song.Title, song.Artist).First(&existing).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching song after constraint violation: %w", fetchErr)
			}
			song.ID = existing.ID
			return existing.ID, nil
		}
		return "", fmt.Errorf("creating song: %w", err)
	}
	c.log.Infof("added song %q (%s) with %d stems", song.Title, song.ID, len(song.Stems))
	return song.ID, nil
}

// GetSong loads a song with its stems.
func (c *Catalog) GetSong(id string) (*Song, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var song Song
	err := c.DB.Preload("Stems").Where("id = ?", id).First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("song %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading song %s: %w", id, err)
	}
	return &song, nil
}

// FindSong resolves a reference that is either a song ID or a title
// (case-insensitive).
func (c *Catalog) FindSong(ref string) (*Song, error) {
	song, err := c.GetSong(ref)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return song, err
	}
	var byTitle Song
	err = c.DB.Preload("Stems").Where("lower(title) = lower(?)", ref).First(&byTitle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("song %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding song %q: %w", ref, err)
	}
	return &byTitle, nil
}

// ListSongs returns every song ordered by title, with stems.
func (c *Catalog) ListSongs() ([]Song, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var songs []Song
	if err := c.DB.Preload("Stems").Order("title").Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return songs, nil
}

// DeleteSong removes a song and its stems. Transitions that reference it are
// kept as history.
func (c *Catalog) DeleteSong(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", id).Delete(&Stem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Song{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("song %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SaveTransition inserts or updates a transition record. An empty ID is
// assigned a new one.
func (c *Catalog) SaveTransition(t *Transition) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := c.DB.Save(t).Error; err != nil {
		return fmt.Errorf("saving transition %s: %w", t.ID, err)
	}
	return nil
}

// GetTransition loads one transition record.
func (c *Catalog) GetTransition(id string) (*Transition, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var t Transition
	err := c.DB.Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("transition %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading transition %s: %w", id, err)
	}
	return &t, nil
}

// ListTransitions returns the newest transitions first. limit <= 0 returns
// all of them.
func (c *Catalog) ListTransitions(limit int) ([]Transition, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Transition
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	return out, nil
}
