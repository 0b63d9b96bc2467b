package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/errs"
)

func TestFSStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), "/assets")
	require.NoError(t, err)

	key, err := s.Put(ctx, "/questions/a/../b/diagram.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "questions/b/diagram.png", key)
	assert.Equal(t, "/assets/questions/b/diagram.png", s.URL(key))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../etc/passwd", "a/../../x", "..\\x"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"))
		assert.True(t, errs.Is(err, errs.Validation), key)
		_, err = s.Get(ctx, key)
		assert.True(t, errs.Is(err, errs.Validation), key)
	}
}

func TestFSStore_GetMissing(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "nope.txt")
	assert.True(t, errs.Is(err, errs.NotFound))
}
