package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLookups(t *testing.T) {
	r := Record{
		"Share Commentary": "  ",
		"shareCommentary":  "hello",
		"LikesCount":       "1,204",
		"Comments":         7.0,
		"Shares":           "n/a",
		"nested": map[string]any{
			"list": []any{map[string]any{"url": "https://x"}},
		},
	}

	assert.Equal(t, "hello", r.String("ShareCommentary", "Share Commentary", "shareCommentary"))
	assert.Equal(t, "", r.String("missing"))
	assert.Equal(t, int64(1204), r.Int("LikesCount"))
	assert.Equal(t, int64(7), r.Int("CommentsCount", "Comments"))
	assert.Equal(t, int64(0), r.Int("Shares"))
	assert.Equal(t, "https://x", r.PathString("nested", "list", "0", "url"))
	assert.Nil(t, r.Path("nested", "list", "3"))
	assert.Nil(t, r.Path("nested", "list", "x"))
	assert.NotNil(t, r.PathRecord("nested"))

	var empty Record
	assert.Equal(t, "", empty.String("a"))
	assert.Nil(t, empty.Path("a", "b"))
}

func TestDecodeChangelogSkipsMalformed(t *testing.T) {
	body := []byte(`{"elements":[
		{"resourceName":"ugcPosts","resourceId":"A","method":"CREATE","capturedAt":1},
		{"resourceName":"ugcPosts","capturedAt":"yesterday"},
		{"method":"CREATE"},
		42
	],"paging":{"links":[{"rel":"next"}]}}`)

	events, paging, skipped, err := DecodeChangelog(body)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 3, skipped)
	assert.True(t, paging.HasNext())

	events, _, _, err = DecodeChangelog([]byte(`not json`))
	assert.Error(t, err)
	assert.NotNil(t, events)

	_, _, _, err = DecodeChangelog([]byte(`{}`))
	assert.ErrorIs(t, err, ErrNoElements)
}

func TestDecodeSnapshot(t *testing.T) {
	body := []byte(`{"elements":[
		{"snapshotDomain":"PROFILE","snapshotData":[{"Headline":"x"}, null, "bad"]},
		{"snapshotData":[]},
		{"snapshotDomain":"CONNECTIONS","snapshotData":[{},{}]}
	]}`)

	elements, _, skipped, err := DecodeSnapshot(body)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, 3, skipped)
	assert.Len(t, Records(elements, DomainProfile), 1)
	assert.Len(t, Records(elements, DomainConnections), 2)
	assert.NotNil(t, Records(elements, DomainShares))
}
