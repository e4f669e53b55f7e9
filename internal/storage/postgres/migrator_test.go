package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "0001_init", migrations[0].String())
	require.Equal(t, "0002_more", migrations[1].String())
	require.Equal(t, "DROP TABLE IF EXISTS test_a;", migrations[0].script(migrationDown))
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantMsg string
	}{
		{
			name:    "missing down",
			fsys:    fstest.MapFS{"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")}},
			wantMsg: "both up and down",
		},
		{
			name:    "invalid filename",
			fsys:    fstest.MapFS{"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")}},
			wantMsg: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantMsg: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantMsg: "name mismatch",
		},
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantMsg: "no migration files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrationsFromFS(tt.fsys)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, int64(1), migrations[0].Version)
}

func TestMigrationSetPlan(t *testing.T) {
	set := migrationSet{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	applied := map[int64]bool{1: true, 2: true}

	up := set.plan(applied, migrationUp, 0)
	require.Len(t, up, 1)
	require.Equal(t, int64(3), up[0].Version)

	down := set.plan(applied, migrationDown, 0)
	require.Equal(t, []int64{2, 1}, []int64{down[0].Version, down[1].Version})

	down = set.plan(applied, migrationDown, 1)
	require.Len(t, down, 1)
	require.Equal(t, int64(2), down[0].Version)

	require.Empty(t, set.plan(map[int64]bool{}, migrationDown, 5))
	require.Len(t, set.plan(nil, migrationUp, 2), 2)
}

func TestParseMigrationFile(t *testing.T) {
	version, name, dir, err := parseMigrationFile("0012_add_roast_level.down.sql")
	require.NoError(t, err)
	require.Equal(t, int64(12), version)
	require.Equal(t, "add_roast_level", name)
	require.Equal(t, migrationDown, dir)

	for _, bad := range []string{"12_x.sql", "x_init.up.sql", "0001_init.sideways.sql", "0001_.up.sql"} {
		_, _, _, err := parseMigrationFile(bad)
		require.Error(t, err, bad)
	}
}
