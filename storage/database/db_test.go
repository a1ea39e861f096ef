package database

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cohort/core"
)

func TestDSN(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = "postgres"
	conf.Database.Host = "db.local"
	conf.Database.Port = 5433
	conf.Database.User = "cohort"
	conf.Database.Password = "p@ss word"
	conf.Database.AdminUser = "postgres"
	conf.Database.AdminPassword = "root"

	tests := []struct {
		name       string
		admin      bool
		disableTLS bool
		wantUser   string
		wantPass   string
		wantSSL    string
	}{
		{name: "app role", wantUser: "cohort", wantPass: "p@ss word", wantSSL: "require"},
		{name: "admin role", admin: true, wantUser: "postgres", wantPass: "root", wantSSL: "require"},
		{name: "without TLS", disableTLS: true, wantUser: "cohort", wantPass: "p@ss word", wantSSL: "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = tt.disableTLS
			u, err := url.Parse(dsn("cohort_db", tt.admin, conf))
			require.NoError(t, err)

			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db.local:5433", u.Host)
			assert.Equal(t, "/cohort_db", u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			pass, _ := u.User.Password()
			assert.Equal(t, tt.wantPass, pass)
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}

	conf.Database.AdminUser = ""
	u, err := url.Parse(dsn("postgres", true, conf))
	require.NoError(t, err)
	assert.Equal(t, "cohort", u.User.Username(), "falls back to the app role")
}
