package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// document is the row shape backing every collection: one table,
// one JSON payload per document. MySQL's JSON functions give us
// the filtered lookups the port needs.
type document struct {
	Collection string    `gorm:"primaryKey;size:64"`
	ID         string    `gorm:"primaryKey;size:64"`
	Data       []byte    `gorm:"type:json"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (document) TableName() string { return "documents" }

// MySQLStore implements Store on top of MySQL via GORM.
type MySQLStore struct {
	db *gorm.DB
}

// ConnectMySQL opens the remote store, waiting for the database to be
// ready, and migrates the documents table.
func ConnectMySQL(dsn string) (*MySQLStore, error) {
	var db *gorm.DB
	var err error
	for i := 0; i < 5; i++ {
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect after 5 attempts: %w", err)
	}
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	raw, id, err := encodeDoc(doc)
	if err != nil {
		return "", err
	}
	row := document{Collection: collection, ID: id, Data: raw}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", wrapRemote(err)
	}
	return id, nil
}

func (s *MySQLStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row document
		if err := tx.First(&row, "collection = ? AND id = ?", collection, id).Error; err != nil {
			return err
		}
		merged, err := applyPatch(row.Data, patch)
		if err != nil {
			return err
		}
		return tx.Model(&document{}).
			Where("collection = ? AND id = ?", collection, id).
			Update("data", merged).Error
	})
	return wrapRemote(err)
}

func (s *MySQLStore) Get(ctx context.Context, collection, id string, out any) error {
	var row document
	err := s.db.WithContext(ctx).First(&row, "collection = ? AND id = ?", collection, id).Error
	if err != nil {
		return wrapRemote(err)
	}
	return json.Unmarshal(row.Data, out)
}

func (s *MySQLStore) List(ctx context.Context, collection string, filter map[string]any, out any) error {
	q := s.db.WithContext(ctx).Model(&document{}).Where("collection = ?", collection)
	for key, value := range filter {
		q = q.Where("JSON_UNQUOTE(JSON_EXTRACT(data, ?)) = ?", "$."+key, fmt.Sprint(value))
	}
	var rows []document
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return wrapRemote(err)
	}
	return decodeRows(rows, out)
}

func (s *MySQLStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).Delete(&document{}, "collection = ? AND id = ?", collection, id)
	if res.Error != nil {
		return wrapRemote(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrapRemote(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapRemote(err)
	}
	return nil
}

// encodeDoc marshals a document and makes sure it carries an id.
func encodeDoc(doc any) (raw []byte, id string, err error) {
	raw, err = json.Marshal(doc)
	if err != nil {
		return nil, "", err
	}
	var fields map[string]any
	if err = json.Unmarshal(raw, &fields); err != nil {
		return nil, "", err
	}
	if v, ok := fields["id"].(string); ok && v != "" {
		return raw, v, nil
	}
	id = uuid.NewString()
	fields["id"] = id
	raw, err = json.Marshal(fields)
	return raw, id, err
}

func applyPatch(data []byte, patch map[string]any) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	return json.Marshal(fields)
}

func decodeRows(rows []document, out any) error {
	parts := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, json.RawMessage(r.Data))
	}
	joined, err := json.Marshal(parts)
	if err != nil {
		return err
	}
	return json.Unmarshal(joined, out)
}

// wrapRemote maps driver errors onto the port's sentinel errors so
// callers never depend on GORM.
func wrapRemote(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
