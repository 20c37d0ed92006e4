package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_EmptyRegion(t *testing.T) {
	dir := writeWorldDump(t)

	out, _, err := execute(t, "scan", dir, "--lo", "0x92501000", "--hi", "0x92502000")
	require.NoError(t, err)
	assert.Contains(t, out, "0 clusters, 0 moves")
	assert.Contains(t, out, "SLOT")
}

func TestScan_JSON(t *testing.T) {
	dir := writeWorldDump(t)

	out, _, err := execute(t, "scan", dir, "--lo", "0x92501000", "--hi", "0x92502000", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Clusters int `json:"clusters"`
			Slots    []struct {
				Entity string `json:"entity"`
			} `json:"slots"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Clusters)
	require.Len(t, resp.Data.Slots, 4)
	assert.Equal(t, "Ryu", resp.Data.Slots[0].Entity)
	assert.Equal(t, "Chun-Li", resp.Data.Slots[2].Entity)
}

func TestScan_UnmappedRegion(t *testing.T) {
	dir := writeWorldDump(t)

	_, _, err := execute(t, "scan", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestScan_InvertedRegion(t *testing.T) {
	dir := writeWorldDump(t)

	_, _, err := execute(t, "scan", dir, "--lo", "0x92502000", "--hi", "0x92501000")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
