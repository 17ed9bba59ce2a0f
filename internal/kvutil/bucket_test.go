package kvutil

import (
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	wmtest "github.com/torch-to-flame/walkmate/testing"
)

func TestEnsureBucket_CreatesWhenMissing(t *testing.T) {
	_, nc := wmtest.StartEmbeddedNATS(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	kv, err := EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{
		Bucket:  "kvutil-create",
		Storage: jetstream.MemoryStorage,
	})
	require.NoError(t, err)
	require.NotNil(t, kv)

	status, err := kv.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, "kvutil-create", status.Bucket())
}

func TestEnsureBucket_OpensWhenExisting(t *testing.T) {
	_, nc := wmtest.StartEmbeddedNATS(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	cfg := jetstream.KeyValueConfig{
		Bucket:  "kvutil-existing",
		Storage: jetstream.MemoryStorage,
	}

	first, err := EnsureBucket(t.Context(), js, cfg)
	require.NoError(t, err)

	_, err = first.PutString(t.Context(), "probe", "value")
	require.NoError(t, err)

	second, err := EnsureBucket(t.Context(), js, cfg)
	require.NoError(t, err)

	entry, err := second.Get(t.Context(), "probe")
	require.NoError(t, err)
	require.Equal(t, "value", string(entry.Value()))
}
