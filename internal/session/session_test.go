package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsAnonymous(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "", st.Token())
	assert.False(t, st.Current().LoggedIn())
}

func TestSaveRoundTripsThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	st, err := Open(path)
	require.NoError(t, err)

	want := Session{Token: " abc ", UserID: "7", Account: "2024001", Name: "Li Hua", Role: "student"}
	require.NoError(t, st.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, want, reopened.Current())
	assert.Equal(t, "abc", reopened.Token())
}

func TestClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Save(Session{Token: "t"}))

	require.NoError(t, st.Clear())
	assert.Equal(t, Session{}, st.Current())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// clearing twice is fine
	require.NoError(t, st.Clear())
}

func TestNilStoreTokenIsEmpty(t *testing.T) {
	var st *Store
	assert.Equal(t, "", st.Token())
}
