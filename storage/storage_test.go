package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minierp/storage/database/dummy"
	"github.com/trezcool/minierp/testutil"
)

func TestOpenStore(t *testing.T) {
	conf := testutil.NewConfig()

	conf.DocStore.Backend = BackendMemory
	store, err := OpenStore(context.Background(), conf, testutil.NewLogger())
	require.NoError(t, err)
	assert.IsType(t, &dummydb.DB{}, store)

	conf.DocStore.Backend = "redis"
	_, err = OpenStore(context.Background(), conf, testutil.NewLogger())
	assert.EqualError(t, err, `unknown document store backend "redis"`)
}
