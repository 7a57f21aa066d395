package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/dwgate/pkg/errors"
)

func TestParsePlatformKind(t *testing.T) {
	tests := []struct {
		input    string
		expected PlatformKind
	}{
		{"maxcompute", KindMaxCompute},
		{"DataWorks", KindDataWorks},
		{"HOLO", KindHologres},
		{"hologres", KindHologres},
		{"MySQL", KindMySQL},
		{" polardb ", KindPolarDB},
		{"Redshift", KindRedshift},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParsePlatformKind(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}

	_, err := ParsePlatformKind("oracle")
	assert.True(t, errors.IsUnknownPlatform(err))
}

func TestPlatformKind_Canonical(t *testing.T) {
	assert.Equal(t, KindMaxCompute, KindDataWorks.Canonical())
	assert.Equal(t, KindHologres, KindHologres.Canonical())
	assert.Equal(t, 0, KindDataWorks.DefaultPort())
	assert.Equal(t, 5439, KindRedshift.DefaultPort())
}

func TestNewInstanceConfig(t *testing.T) {
	t.Run("hologres with default port", func(t *testing.T) {
		cfg, err := NewInstanceConfig("holo_hk_chatbi", KindHologres, map[string]string{
			ParamHost:     "hgprecn.hologres.aliyuncs.com",
			ParamUser:     "BASIC%24chatbi",
			ParamPassword: "secret",
			ParamDBName:   "chatbi",
		})
		require.NoError(t, err)
		require.NotNil(t, cfg.Postgres)
		assert.Nil(t, cfg.MySQL)
		assert.Nil(t, cfg.MaxCompute)
		assert.Equal(t, 80, cfg.Postgres.Port)
		assert.Equal(t, "chatbi", cfg.Postgres.Database)
	})

	t.Run("mysql accepts DBNAME alias", func(t *testing.T) {
		cfg, err := NewInstanceConfig("mysql_cn_antigravity", KindMySQL, map[string]string{
			ParamHost:     "rm-xxx.mysql.rds.aliyuncs.com",
			ParamUser:     "reader",
			ParamPassword: "secret",
			ParamDBName:   "antigravity",
			ParamPort:     "3307",
		})
		require.NoError(t, err)
		require.NotNil(t, cfg.MySQL)
		assert.Equal(t, 3307, cfg.MySQL.Port)
		assert.Equal(t, "antigravity", cfg.MySQL.Database)
	})

	t.Run("maxcompute missing access key", func(t *testing.T) {
		_, err := NewInstanceConfig("maxcompute_hk_bdw", KindMaxCompute, map[string]string{
			ParamProject:  "bdw",
			ParamAccessID: "id",
			ParamEndpoint: "http://service.cn-hongkong.maxcompute.aliyun.com/api",
		})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequest(err))
		assert.Contains(t, err.Error(), "ACCESSKEY")
	})

	t.Run("redshift missing db names DB", func(t *testing.T) {
		_, err := NewInstanceConfig("redshift_eu_avbu", KindRedshift, map[string]string{
			ParamHost: "x.redshift.amazonaws.com", ParamUser: "u", ParamPassword: "p",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB")
	})

	t.Run("invalid port", func(t *testing.T) {
		_, err := NewInstanceConfig("polardb_cn_x", KindPolarDB, map[string]string{
			ParamHost: "h", ParamUser: "u", ParamPassword: "p", ParamDB: "d", ParamPort: "abc",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PORT")
	})
}

func TestInstanceConfig_Redacted(t *testing.T) {
	cfg, err := NewInstanceConfig("maxcompute_hk_bdw", KindMaxCompute, map[string]string{
		ParamProject:   "bdw",
		ParamAccessID:  "id",
		ParamAccessKey: "topsecret",
		ParamEndpoint:  "http://service.cn-hongkong.maxcompute.aliyun.com/api",
	})
	require.NoError(t, err)

	red := cfg.Redacted()
	assert.Equal(t, "****", red.MaxCompute.AccessKey)
	assert.Equal(t, "topsecret", cfg.MaxCompute.AccessKey, "original must not change")

	data, err := json.Marshal(red)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "topsecret")
}

func TestStatementCategory(t *testing.T) {
	assert.Equal(t, "SCHEMA_MUTATION", CategorySchemaMutation.String())
	assert.Equal(t, CategoryUnknown, CategoryRead.MoreSevere(CategoryUnknown))
	assert.Equal(t, CategoryDestructive, CategoryDestructive.MoreSevere(CategoryRead))

	data, err := json.Marshal(StatementVerdict{Category: CategoryDestructive})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category":"DESTRUCTIVE"`)
}

func TestGroupColumns(t *testing.T) {
	rows := []ColumnRow{
		{Schema: "public", Table: "orders", Column: "id", Type: "bigint"},
		{Schema: "public", Table: "orders", Column: "note", Type: "text", Nullable: true},
		{Schema: "public", Table: "users", Column: "id", Type: "bigint"},
		{Schema: "sales", Table: "leads", Column: "email", Type: "varchar", Nullable: true},
	}

	schemas := GroupColumns(rows)
	require.Len(t, schemas, 2)
	assert.Equal(t, "public", schemas[0].Name)
	require.Len(t, schemas[0].Tables, 2)
	assert.Len(t, schemas[0].Tables[0].Columns, 2)
	assert.True(t, schemas[0].Tables[0].Columns[1].Nullable)
	assert.Equal(t, "leads", schemas[1].Tables[0].Name)
}
