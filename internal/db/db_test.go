package db

import (
	"testing"

	"github.com/shinyyama/paychat-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			"host and port",
			config.Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "paychat"},
			"u:p@tcp(db:3306)/paychat?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			"cloud sql",
			config.Config{DBUser: "u", DBPassword: "p", DBName: "paychat", InstanceConnectionName: "proj:region:inst"},
			"u:p@unix(/cloudsql/proj:region:inst)/paychat?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			"socket path",
			config.Config{DBUser: "u", DBPassword: "p", DBHost: "/var/run/mysqld.sock", DBName: "paychat"},
			"u:p@unix(/var/run/mysqld.sock)/paychat?charset=utf8mb4&parseTime=True&loc=UTC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDSN(&tt.cfg))
		})
	}
}

func TestOpenMemoryMigrates(t *testing.T) {
	gdb, err := OpenMemory(t.Name())
	require.NoError(t, err)
	for _, table := range []string{"users", "services", "chats", "messages", "purchases", "notifications"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
}
