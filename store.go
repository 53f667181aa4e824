package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Record is a stored whitepaper together with its generation state.
// Paper is nil until the record is completed.
type Record struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Error     string      `json:"error,omitempty"`
	Topic     string      `json:"topic"`
	Title     string      `json:"title,omitempty"`
	Request   Request     `json:"-"`
	Paper     *Whitepaper `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Store interface {
	Create(ctx context.Context, id string, req Request) error
	Get(ctx context.Context, id string) (*Record, error)
	UpdateStatus(ctx context.Context, id, status, errMsg string) error
	SaveResult(ctx context.Context, paper *Whitepaper) error
	List(ctx context.Context, limit int) ([]Record, error)
}

type whitepaperRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Status    string `gorm:"size:16;index"`
	Error     string
	Topic     string
	Title     string
	Subtitle  string
	Author    string
	Body      string
	Sources   datatypes.JSON
	Options   datatypes.JSON
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Images []imageRecord `gorm:"foreignKey:WhitepaperID;constraint:OnDelete:CASCADE"`
}

func (whitepaperRecord) TableName() string { return "whitepapers" }

type imageRecord struct {
	ID           uint   `gorm:"primaryKey"`
	WhitepaperID string `gorm:"size:36;index"`
	Position     int
	Cover        bool
	Key          string
	Page         int
	Caption      string
	Width        int
	Height       int
	PNG          []byte
}

func (imageRecord) TableName() string { return "whitepaper_images" }

// recordOptions is what the whitepaper was asked to look like.
type recordOptions struct {
	Request      Request `json:"request"`
	IncludeCover bool    `json:"include_cover"`
	IncludeTOC   bool    `json:"include_toc"`
}

type gormStore struct {
	db  *gorm.DB
	log *Logger
}

func openStore(dsn string, log *Logger) (*gormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newGormStore(db, log)
}

func newGormLogger() gormLogger.Interface {
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

func newGormStore(db *gorm.DB, log *Logger) (*gormStore, error) {
	if log == nil {
		log = nopLogger()
	}
	if err := db.AutoMigrate(&whitepaperRecord{}, &imageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &gormStore{db: db, log: log.With("component", "store")}, nil
}

// Close releases the underlying database handle.
func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.Close()
}

func (s *gormStore) Create(ctx context.Context, id string, req Request) error {
	// Inline image bytes are not kept; resolved images are stored as PNG.
	stored := req
	stored.Images = make([]ImageSpec, len(req.Images))
	for i, img := range req.Images {
		img.Data = ""
		stored.Images[i] = img
	}
	opts, err := json.Marshal(recordOptions{Request: stored, IncludeCover: req.IncludeCover, IncludeTOC: req.IncludeTOC})
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	rec := whitepaperRecord{
		ID:      id,
		Status:  StatusPending,
		Topic:   req.Topic,
		Title:   req.Title,
		Author:  req.Author,
		Options: datatypes.JSON(opts),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create whitepaper %s: %w", id, err)
	}
	return nil
}

func (s *gormStore) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	res := s.db.WithContext(ctx).Model(&whitepaperRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error": errMsg, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update status of %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("whitepaper %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveResult stores the generated content and marks the record completed.
// A paper without a prior Create is inserted.
func (s *gormStore) SaveResult(ctx context.Context, paper *Whitepaper) error {
	sources, err := json.Marshal(paper.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec whitepaperRecord
		err := tx.Where("id = ?", paper.ID).Limit(1).Find(&rec).Error
		if err != nil {
			return fmt.Errorf("load whitepaper %s: %w", paper.ID, err)
		}
		if rec.ID == "" {
			opts, _ := json.Marshal(recordOptions{
				Request:      Request{Topic: paper.Topic, Title: paper.Title, Author: paper.Author},
				IncludeCover: paper.IncludeCover,
				IncludeTOC:   paper.IncludeTOC,
			})
			rec = whitepaperRecord{ID: paper.ID, Options: datatypes.JSON(opts), CreatedAt: paper.CreatedAt}
		}
		rec.Status = StatusCompleted
		rec.Error = ""
		rec.Topic = paper.Topic
		rec.Title = paper.Title
		rec.Subtitle = paper.Subtitle
		rec.Author = paper.Author
		rec.Body = paper.Body
		rec.Sources = datatypes.JSON(sources)
		if err := tx.Omit("Images").Save(&rec).Error; err != nil {
			return fmt.Errorf("save whitepaper %s: %w", paper.ID, err)
		}

		if err := tx.Where("whitepaper_id = ?", paper.ID).Delete(&imageRecord{}).Error; err != nil {
			return fmt.Errorf("clear images of %s: %w", paper.ID, err)
		}
		var images []imageRecord
		for i, img := range paper.Images {
			images = append(images, toImageRecord(paper.ID, i, false, img))
		}
		if paper.Cover != nil {
			images = append(images, toImageRecord(paper.ID, len(images), true, *paper.Cover))
		}
		if len(images) > 0 {
			if err := tx.Create(&images).Error; err != nil {
				return fmt.Errorf("save images of %s: %w", paper.ID, err)
			}
		}
		return nil
	})
}

func toImageRecord(id string, pos int, cover bool, img ImageAsset) imageRecord {
	return imageRecord{
		WhitepaperID: id,
		Position:     pos,
		Cover:        cover,
		Key:          img.Key,
		Page:         img.Page,
		Caption:      img.Caption,
		Width:        img.Width,
		Height:       img.Height,
		PNG:          img.PNG,
	}
}

func (s *gormStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec whitepaperRecord
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("whitepaper %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load whitepaper %s: %w", id, err)
	}
	return s.toRecord(rec, true)
}

func (s *gormStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var recs []whitepaperRecord
	err := s.db.WithContext(ctx).
		Omit("body", "sources").
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list whitepapers: %w", err)
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		r, err := s.toRecord(rec, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *gormStore) toRecord(rec whitepaperRecord, full bool) (*Record, error) {
	var opts recordOptions
	if len(rec.Options) > 0 {
		if err := json.Unmarshal(rec.Options, &opts); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", rec.ID, err)
		}
	}
	out := &Record{
		ID:        rec.ID,
		Status:    rec.Status,
		Error:     rec.Error,
		Topic:     rec.Topic,
		Title:     rec.Title,
		Request:   opts.Request,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if !full || rec.Status != StatusCompleted {
		return out, nil
	}

	paper := &Whitepaper{
		ID:           rec.ID,
		Title:        rec.Title,
		Subtitle:     rec.Subtitle,
		Topic:        rec.Topic,
		Author:       rec.Author,
		Body:         rec.Body,
		Blocks:       parseMarkup(rec.Body),
		IncludeCover: opts.IncludeCover,
		IncludeTOC:   opts.IncludeTOC,
		CreatedAt:    rec.CreatedAt,
	}
	if len(rec.Sources) > 0 {
		if err := json.Unmarshal(rec.Sources, &paper.Sources); err != nil {
			return nil, fmt.Errorf("decode sources of %s: %w", rec.ID, err)
		}
	}
	for _, img := range rec.Images {
		asset := ImageAsset{
			Key:     img.Key,
			Page:    img.Page,
			Caption: img.Caption,
			Width:   img.Width,
			Height:  img.Height,
			PNG:     img.PNG,
		}
		if img.Cover {
			paper.Cover = &asset
			continue
		}
		paper.Images = append(paper.Images, asset)
	}
	out.Paper = paper
	return out, nil
}
