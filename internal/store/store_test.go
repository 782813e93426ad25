package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"editmesh/internal/proto"
)

func testEdit(refID string) proto.Edit {
	return proto.Edit{
		RefID:      refID,
		Route:      "edits.doc",
		Body:       []byte(`{"data":1}`),
		ReceivedAt: time.Now().UTC(),
	}
}

func TestAppendAndList(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "edits.jsonl"))
	require.NoError(t, l.Append(testEdit("ref-1")))
	require.NoError(t, l.Append(testEdit("ref-2")))

	got, err := l.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "ref-1", got[0].RefID)
	require.Equal(t, "ref-2", got[1].RefID)
}

func TestListSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.jsonl")
	l := New(path)
	require.NoError(t, l.Append(testEdit("ref-1")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, l.Append(testEdit("ref-2")))

	got, err := l.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestImportStopsAtInvalidEdit(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "edits.jsonl"))
	err := l.Import([]proto.Edit{
		testEdit("ref-1"),
		{Body: []byte(`{}`)}, // missing route
		testEdit("ref-3"),
	})
	require.Error(t, err)

	got, err := l.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestEnsureLogCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "edits.jsonl")
	l := New(path)
	require.NoError(t, l.EnsureLog())
	_, err := os.Stat(path)
	require.NoError(t, err)

	got, err := l.List()
	require.NoError(t, err)
	require.Empty(t, got)
}
