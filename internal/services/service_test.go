package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newServiceDB opens a throwaway SQLite database under t.TempDir and migrates
// the given models.
func newServiceDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("service_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// publishedMessage captures one Publish call.
type publishedMessage struct {
	Topic     string
	EventType string
	Payload   any
}

// fakeBus implements Publisher and records accepted messages. Setting Err
// makes every Publish fail.
type fakeBus struct {
	mu       sync.Mutex
	Messages []publishedMessage
	Err      error
}

func (f *fakeBus) Publish(_ context.Context, topic, eventType string, payload any) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	f.Messages = append(f.Messages, publishedMessage{Topic: topic, EventType: eventType, Payload: payload})
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) last(t *testing.T) publishedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Messages) == 0 {
		t.Fatalf("no message published")
	}
	return f.Messages[len(f.Messages)-1]
}

var errBusDown = errors.New("bus down")
