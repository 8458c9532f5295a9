package model

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenTagHelpers(t *testing.T) {
	token := &TokenInfo{}

	require.False(t, token.HasTag("nsfw"))
	require.Nil(t, token.TagList())

	require.True(t, token.AddTag("nsfw"))
	require.True(t, token.HasTag("nsfw"))
	require.False(t, token.AddTag("nsfw"), "re-adding must not change the row")

	require.True(t, token.AddTag("imported"))
	require.Equal(t, []string{"nsfw", "imported"}, token.TagList())
	require.Equal(t, "nsfw,imported", token.Tags)
}

func TestInsertTokensSkipsDuplicates(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	first, err := InsertTokens(ctx, []*TokenInfo{
		{Token: "sso-a", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
		{Token: "sso-b", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)

	// One duplicate, one fresh, one duplicated within the request itself.
	second, err := InsertTokens(ctx, []*TokenInfo{
		{Token: "sso-b", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
		{Token: "sso-c", Pool: PoolSuper, Status: TokenStatusActive, Quota: 140},
		{Token: "sso-c", Pool: PoolSuper, Status: TokenStatusActive, Quota: 140},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "sso-c", second[0].Token)

	all, err := AllTokens("")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestAllTokensFiltersByPool(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	_, err := InsertTokens(ctx, []*TokenInfo{
		{Token: "sso-basic", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
		{Token: "sso-super", Pool: PoolSuper, Status: TokenStatusActive, Quota: 140},
	})
	require.NoError(t, err)

	super, err := AllTokens(PoolSuper)
	require.NoError(t, err)
	require.Len(t, super, 1)
	require.Equal(t, "sso-super", super[0].Token)
}

func TestSaveTokenStatesLeavesAdminColumnsAlone(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	inserted, err := InsertTokens(ctx, []*TokenInfo{
		{Token: "sso-a", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80, Note: "imported batch 1"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	dirty := *inserted[0]
	dirty.Status = TokenStatusCooling
	dirty.Quota = 0
	dirty.UseCount = 7
	dirty.FailCount = 2
	dirty.LastFailReason = "429"
	dirty.Tags = "nsfw"
	// The save loop must not be able to move a token between pools or
	// clobber operator notes.
	dirty.Pool = PoolSuper
	dirty.Note = "clobbered"

	require.NoError(t, SaveTokenStates(ctx, []*TokenInfo{&dirty}))

	stored, err := GetTokenById(inserted[0].Id)
	require.NoError(t, err)
	require.Equal(t, TokenStatusCooling, stored.Status)
	require.Equal(t, 0, stored.Quota)
	require.Equal(t, 7, stored.UseCount)
	require.Equal(t, 2, stored.FailCount)
	require.Equal(t, "429", stored.LastFailReason)
	require.Equal(t, "nsfw", stored.Tags)
	require.Equal(t, PoolBasic, stored.Pool)
	require.Equal(t, "imported batch 1", stored.Note)
}

func TestDeleteTokenById(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	inserted, err := InsertTokens(ctx, []*TokenInfo{
		{Token: "sso-a", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
	})
	require.NoError(t, err)

	require.NoError(t, DeleteTokenById(ctx, inserted[0].Id))
	require.Error(t, DeleteTokenById(ctx, inserted[0].Id), "second delete must report not found")
	require.Error(t, DeleteTokenById(ctx, 0))
}

func TestCountTokensByPoolAndStatus(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	_, err := InsertTokens(ctx, []*TokenInfo{
		{Token: "sso-a", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
		{Token: "sso-b", Pool: PoolBasic, Status: TokenStatusActive, Quota: 80},
		{Token: "sso-c", Pool: PoolBasic, Status: TokenStatusCooling, Quota: 0},
		{Token: "sso-d", Pool: PoolSuper, Status: TokenStatusExpired, Quota: 0},
	})
	require.NoError(t, err)

	stats, err := CountTokensByPoolAndStatus()
	require.NoError(t, err)

	counts := make(map[string]int64)
	for _, s := range stats {
		counts[fmt.Sprintf("%s/%d", s.Pool, s.Status)] = s.Count
	}
	require.Equal(t, int64(2), counts[PoolBasic+"/1"])
	require.Equal(t, int64(1), counts[PoolBasic+"/2"])
	require.Equal(t, int64(1), counts[PoolSuper+"/3"])
}
