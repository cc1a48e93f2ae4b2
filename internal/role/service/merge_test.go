package service

import (
	"math/rand"
	"testing"

	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"github.com/stretchr/testify/assert"
)

func TestMergePermissions(t *testing.T) {
	template := permission.NewSet(permission.BookingView, permission.MembersView)

	t.Run("allow adds a key the template lacks", func(t *testing.T) {
		effective := MergePermissions(template, []roledomain.Override{
			{Key: permission.SettingsManage, Allowed: true},
		})
		assert.True(t, effective.Has(permission.SettingsManage))
		assert.True(t, effective.Has(permission.BookingView))
	})

	t.Run("deny removes a key the template grants", func(t *testing.T) {
		effective := MergePermissions(template, []roledomain.Override{
			{Key: permission.MembersView, Allowed: false},
		})
		assert.False(t, effective.Has(permission.MembersView))
		assert.True(t, effective.Has(permission.BookingView))
	})

	t.Run("deny wins over an allow in the template", func(t *testing.T) {
		effective := MergePermissions(template, []roledomain.Override{
			{Key: permission.BookingView, Allowed: false},
			{Key: permission.BookingView, Allowed: false},
		})
		assert.False(t, effective.Has(permission.BookingView))
	})

	t.Run("last duplicate wins", func(t *testing.T) {
		effective := MergePermissions(template, []roledomain.Override{
			{Key: permission.AuditView, Allowed: true},
			{Key: permission.AuditView, Allowed: false},
		})
		assert.False(t, effective.Has(permission.AuditView))

		effective = MergePermissions(template, []roledomain.Override{
			{Key: permission.AuditView, Allowed: false},
			{Key: permission.AuditView, Allowed: true},
		})
		assert.True(t, effective.Has(permission.AuditView))
	})

	t.Run("keys outside the catalog are dropped", func(t *testing.T) {
		effective := MergePermissions(template, []roledomain.Override{
			{Key: permission.Key("billing:manage"), Allowed: true},
		})
		assert.Equal(t, template.Strings(), effective.Strings())
	})

	t.Run("input template is not mutated", func(t *testing.T) {
		MergePermissions(template, []roledomain.Override{
			{Key: permission.BookingView, Allowed: false},
		})
		assert.True(t, template.Has(permission.BookingView))
	})
}

// The merge must agree with the one-pass reference semantics: for every
// key, the last override mentioning it decides, and untouched keys follow
// the template.
func TestMergePermissionsRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	catalog := permission.All()

	for i := 0; i < 200; i++ {
		template := permission.Set{}
		for _, key := range catalog {
			if rng.Intn(2) == 0 {
				template.Add(key)
			}
		}

		overrides := make([]roledomain.Override, rng.Intn(15))
		for j := range overrides {
			overrides[j] = roledomain.Override{
				Key:     catalog[rng.Intn(len(catalog))],
				Allowed: rng.Intn(2) == 0,
			}
		}

		effective := MergePermissions(template, overrides)

		for _, key := range catalog {
			expected := template.Has(key)
			for _, override := range overrides {
				if override.Key == key {
					expected = override.Allowed
				}
			}
			assert.Equal(t, expected, effective.Has(key),
				"iteration %d key %s", i, key)
		}
		assert.True(t, len(effective.Keys()) <= len(catalog))
	}
}
