package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zheng/gpuswitch/pkg/models"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	configDir := t.TempDir()
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "qwen-fast.yaml"), []byte("model: qwen-fast\n"), 0o644))
	return New(configDir, templateDir), configDir, templateDir
}

func TestReadMode_DefaultsToLLM(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.Equal(t, models.ModeLLM, s.ReadMode())
}

func TestWriteMode_RoundTrips(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.WriteMode(models.ModeComfy))
	require.Equal(t, models.ModeComfy, s.ReadMode())
}

func TestWriteMode_ClearsLeaseWhenLeavingComfy(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.SetLease(time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.WriteMode(models.ModeLLM))

	_, ok := s.ReadLease()
	require.False(t, ok)
}

func TestStageConfig_WritesPair(t *testing.T) {
	s, configDir, _ := newTestStore(t)
	require.NoError(t, s.StageConfig("qwen-fast.yaml", "qwen-fast"))

	require.Equal(t, "qwen-fast", s.ReadActiveModel())
	raw, err := os.ReadFile(filepath.Join(configDir, configFile))
	require.NoError(t, err)
	require.Equal(t, "model: qwen-fast\n", string(raw))
}

func TestRestore_RemovesWhenEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.StageConfig("qwen-fast.yaml", "qwen-fast"))

	require.NoError(t, s.Restore(nil, ""))
	require.Equal(t, "", s.ReadActiveModel())
	require.Nil(t, s.ReadConfig())
}

func TestLease_SetReadClear(t *testing.T) {
	s, _, _ := newTestStore(t)
	expiry, err := s.SetLease(15 * time.Minute)
	require.NoError(t, err)

	got, ok := s.ReadLease()
	require.True(t, ok)
	require.WithinDuration(t, expiry, got, time.Second)

	require.NoError(t, s.ClearLease())
	_, ok = s.ReadLease()
	require.False(t, ok)
}

func TestReadLease_CorruptTreatedAsAbsent(t *testing.T) {
	s, configDir, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, leaseFile), []byte("not-a-time"), 0o644))

	_, ok := s.ReadLease()
	require.False(t, ok)
}

func TestReconcile_HealsMidPairCrash(t *testing.T) {
	s, configDir, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, configFile), []byte("stale"), 0o644))

	healed, err := s.Reconcile()
	require.NoError(t, err)
	require.True(t, healed)
	require.Nil(t, s.ReadConfig())
	require.Equal(t, "", s.ReadActiveModel())
}

func TestReconcile_NoOpWhenConsistent(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.StageConfig("qwen-fast.yaml", "qwen-fast"))

	healed, err := s.Reconcile()
	require.NoError(t, err)
	require.False(t, healed)
	require.Equal(t, "qwen-fast", s.ReadActiveModel())
}
