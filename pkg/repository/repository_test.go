package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/testutil"
	"github.com/smallbiznis/practicebooks/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type room struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	OrgID  snowflake.ID `gorm:"not null"`
	Name   string       `gorm:"not null"`
	Active bool         `gorm:"not null"`
}

func TestStore(t *testing.T) {
	db := testutil.OpenDB(t, &room{})
	ctx := context.Background()
	rooms := ProvideStore[room](db)

	for i, name := range []string{"Oak", "Birch", "Cedar"} {
		require.NoError(t, rooms.Create(ctx, &room{ID: snowflake.ID(i + 1), OrgID: 10, Name: name, Active: true}))
	}
	require.NoError(t, rooms.Create(ctx, &room{ID: 9, OrgID: 11, Name: "Elm", Active: true}))

	got, err := rooms.FindOne(ctx, &room{ID: 2, OrgID: 10})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Birch", got.Name)

	missing, err := rooms.FindOne(ctx, &room{ID: 9, OrgID: 10})
	require.NoError(t, err)
	assert.Nil(t, missing)

	page, err := rooms.Find(ctx, &room{OrgID: 10},
		option.WithIDAfter(1),
		option.WithSortBy("id", "asc"),
		option.WithLimit(5),
	)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Birch", page[0].Name)
	assert.Equal(t, "Cedar", page[1].Name)

	require.NoError(t, rooms.Update(ctx, 3, map[string]any{"active": false}))
	inactive, err := rooms.Find(ctx, &room{OrgID: 10}, option.WithWhere("active = ?", false))
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.EqualValues(t, 3, inactive[0].ID)

	err = rooms.Update(ctx, 404, map[string]any{"active": false})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
