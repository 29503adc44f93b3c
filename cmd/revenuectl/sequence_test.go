package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSequenceNextSeedsThenIncrements(t *testing.T) {
	mr := miniredis.RunT(t)

	out, err := run(t, "--redis-addr", mr.Addr(), "sequence", "next", "bill", "--date", "2025-06-01", "--seed", "41")
	require.NoError(t, err)
	assert.Equal(t, "BIL-20250601-00042\n", out)

	out, err = run(t, "--redis-addr", mr.Addr(), "sequence", "next", "BILL", "--date", "2025-06-01", "--seed", "41")
	require.NoError(t, err)
	assert.Equal(t, "BIL-20250601-00043\n", out)

	stored, err := mr.Get("revenue:seq:bill:2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "43", stored)
	assert.Equal(t, 72*time.Hour, mr.TTL("revenue:seq:bill:2025-06-01"))
}

func TestSequencePeek(t *testing.T) {
	mr := miniredis.RunT(t)

	out, err := run(t, "--redis-addr", mr.Addr(), "sequence", "peek", "receipt", "--date", "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "receipt:2025-06-02 none\n", out)

	require.NoError(t, mr.Set("ops:receipt:2025-06-02", "7"))
	out, err = run(t, "--redis-addr", mr.Addr(), "--sequence-key-prefix", "ops:",
		"sequence", "peek", "receipt", "--date", "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "receipt:2025-06-02 7 RCP-20250602-00007\n", out)
}

func TestSequenceEnvironmentPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REVENUE_REDIS_ADDR", mr.Addr())
	t.Setenv("REVENUE_SEQUENCE_KEY_PREFIX", "env:")

	out, err := run(t, "sequence", "next", "claim", "--date", "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, "CLM-20250603-00001\n", out)
	assert.True(t, mr.Exists("env:claim:2025-06-03"))
}

func TestSequenceRejectsBadInput(t *testing.T) {
	mr := miniredis.RunT(t)

	_, err := run(t, "--redis-addr", mr.Addr(), "sequence", "next", "invoice")
	assert.ErrorContains(t, err, "unknown document type")

	_, err = run(t, "--redis-addr", mr.Addr(), "sequence", "next", "bill", "--date", "01/06/2025")
	assert.ErrorContains(t, err, "invalid --date")
}

func TestSequenceTypes(t *testing.T) {
	out, err := run(t, "sequence", "types")
	require.NoError(t, err)
	assert.Contains(t, out, "master_bill  MBL")
	assert.Contains(t, out, "coding       COD")
}
