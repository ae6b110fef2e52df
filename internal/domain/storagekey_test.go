package domain

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStorageKey_Layout(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	key, err := BuildStorageKey(VisibilityPrivate, "org1", "report1", "receipt.pdf", "token", now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "attachments/private/org1/report1/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))

	key, err = BuildStorageKey(VisibilityPublic, "org1", "", "logo.png", "token", now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "attachments/public/org1/logo/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
}

func TestBuildStorageKey_Deterministic(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	k1, err := BuildStorageKey(VisibilityPrivate, "org1", "report1", "receipt.pdf", "token", now)
	require.NoError(t, err)
	k2, err := BuildStorageKey(VisibilityPrivate, "org1", "report1", "receipt.pdf", "token", now)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestBuildStorageKey_MissingContext(t *testing.T) {
	now := time.Now()

	_, err := BuildStorageKey(VisibilityPrivate, "org1", "", "receipt.pdf", "token", now)
	assert.ErrorIs(t, err, ErrKeyReportRequired)

	_, err = BuildStorageKey(VisibilityPublic, "", "", "logo.png", "token", now)
	assert.ErrorIs(t, err, ErrKeyOrganizationRequired)

	_, err = BuildStorageKey(VisibilityPrivate, "org1", "report1", "", "token", now)
	assert.ErrorIs(t, err, ErrKeyFileNameRequired)
}

// Concurrent uploads of the same file name from the same context must never
// collide as long as each call uses a fresh token.
func TestBuildStorageKey_UniqueUnderConcurrency(t *testing.T) {
	const n = 100
	now := time.Now()

	var mu sync.Mutex
	keys := make(map[string]struct{}, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := BuildStorageKey(VisibilityPrivate, "org1", "report1", "receipt.pdf", uuid.NewString(), now)
			require.NoError(t, err)
			mu.Lock()
			keys[key] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, keys, n, "all keys should be pairwise unique")
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "pdf", FileExtension("Receipt.PDF"))
	assert.Equal(t, "jpeg", FileExtension("photo.jpeg"))
	assert.Equal(t, "", FileExtension("README"))
}
