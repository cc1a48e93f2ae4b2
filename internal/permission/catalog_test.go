package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	key, err := Parse("settings:manage")
	require.NoError(t, err)
	assert.Equal(t, SettingsManage, key)

	key, err = Parse("  booking:view ")
	require.NoError(t, err)
	assert.Equal(t, BookingView, key)

	_, err = Parse("billing:manage")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestFullSetCoversCatalog(t *testing.T) {
	full := FullSet()
	assert.Len(t, full, len(All()))
	for _, key := range All() {
		assert.True(t, full.Has(key), key.String())
	}
}

func TestSetOperations(t *testing.T) {
	set := NewSet(BookingView, MembersView)
	assert.True(t, set.Has(BookingView))
	assert.False(t, set.Has(SettingsManage))

	set.Add(SettingsManage)
	assert.True(t, set.Has(SettingsManage))

	set.Remove(BookingView)
	assert.False(t, set.Has(BookingView))

	clone := set.Clone()
	clone.Remove(SettingsManage)
	assert.True(t, set.Has(SettingsManage))
	assert.False(t, clone.Has(SettingsManage))
}

func TestSetStringsIsSorted(t *testing.T) {
	set := NewSet(SettingsManage, BookingView, AuditView)
	assert.Equal(t, []string{"audit:view", "booking:view", "settings:manage"}, set.Strings())
}
