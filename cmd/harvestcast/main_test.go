package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/models"
)

func testEnv(t *testing.T) (*Env, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &Env{
		Ctx:     context.Background(),
		Log:     logger.Nop(),
		Out:     &out,
		Globals: &Globals{DB: filepath.Join(t.TempDir(), "harvestcast.db")},
	}, &out
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestImportThenLedgerAndUsers(t *testing.T) {
	env, out := testEnv(t)

	imp := &ImportCmd{
		User:     7,
		Crops:    writeFile(t, "crops.csv", "id,name,area,planting_date\n1,Maize,2,2023-03-10\n"),
		Harvests: writeFile(t, "harvests.csv", "id,crop_id,date,yield_amount\n10,1,2023-07-20,3000\n"),
	}
	require.NoError(t, imp.Run(env))
	out.Reset()

	require.NoError(t, (&UsersCmd{}).Run(env))
	var users []int64
	require.NoError(t, json.Unmarshal(out.Bytes(), &users))
	require.Equal(t, []int64{7}, users)
	out.Reset()

	require.NoError(t, (&LedgerCmd{User: 7}).Run(env))
	var l models.Ledger
	require.NoError(t, json.Unmarshal(out.Bytes(), &l))
	require.Equal(t, int64(7), l.UserID)
	require.Len(t, l.Crops, 1)
	require.Equal(t, "Maize", l.Crops[0].Name)
	require.Len(t, l.Harvests, 1)
	require.Equal(t, 3000.0, l.Harvests[0].YieldAmount)
}

func TestUsersEmptyDatabase(t *testing.T) {
	env, out := testEnv(t)
	require.NoError(t, (&UsersCmd{}).Run(env))
	require.JSONEq(t, "[]", out.String())
}

func TestBaselinesListsCrops(t *testing.T) {
	env, out := testEnv(t)
	require.NoError(t, (&BaselinesCmd{Crops: true}).Run(env))

	var crops []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &crops))
	require.Contains(t, crops, "Maize")
	require.IsIncreasing(t, crops)
}
