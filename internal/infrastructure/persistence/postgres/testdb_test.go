package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campaign-forge-api/internal/domain/entity"
)

var testDBSeq atomic.Int64

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := fmt.Sprintf("file:forge_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	c := NewClientWithDB(db)
	require.NoError(t, c.AutoMigrate(context.Background()))
	return c
}

func seedCampaign(t *testing.T, c *Client, name string) *entity.Campaign {
	t.Helper()
	camp := &entity.Campaign{Name: name, GameSystem: "D&D 5e", Setting: "Forgotten Realms", Tone: "grim"}
	require.NoError(t, NewCampaignRepository(c).Create(context.Background(), camp))
	require.NotEmpty(t, camp.ID)
	return camp
}
