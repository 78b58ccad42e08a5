// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentFromRaw_Scalars(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex("65a5071e1f2c3d4e5f607182")
	require.NoError(t, err)

	tests := map[string]struct {
		value any
		want  string
	}{
		"int32":           {value: int32(500), want: "500"},
		"int64":           {value: int64(8589934592), want: "8589934592"},
		"double":          {value: 1.5, want: "1.5"},
		"integral double": {value: 10.0, want: "10"},
		"negative double": {value: -0.25, want: "-0.25"},
		"bool":            {value: true, want: "true"},
		"string":          {value: "6.0.3", want: "6.0.3"},
		"datetime":        {value: time.Date(2024, 1, 15, 10, 20, 30, 0, time.UTC), want: "2024-01-15 10:20:30 UTC"},
		"timestamp":       {value: primitive.Timestamp{T: 1705314030, I: 1}, want: "1705314030"},
		"object id":       {value: oid, want: "65a5071e1f2c3d4e5f607182"},
		"null":            {value: nil, want: ""},
		"array":           {value: bson.A{int32(1), "two", 3.5}, want: "[1, two, 3.5]"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			doc := newTestDocument(t, bson.D{{Key: "v", Value: test.value}})

			v, ok := doc.Lookup("v")
			require.True(t, ok)
			assert.False(t, v.IsDocument())
			assert.Equal(t, test.want, v.String())
		})
	}
}

func TestDocumentFromRaw_KeepsOrderAndNesting(t *testing.T) {
	doc := newTestDocument(t, bson.D{
		{Key: "uptime", Value: int32(500)},
		{Key: "mem", Value: bson.D{
			{Key: "virtual", Value: int32(128)},
			{Key: "resident", Value: int32(64)},
		}},
		{Key: "ok", Value: 1.0},
	})

	require.Len(t, doc, 3)
	assert.Equal(t, "uptime", doc[0].Key)
	assert.Equal(t, "mem", doc[1].Key)
	assert.Equal(t, "ok", doc[2].Key)

	mem := doc[1].Value
	require.True(t, mem.IsDocument())
	assert.Equal(t, "virtual", mem.Document()[0].Key)
	assert.Equal(t, "resident", mem.Document()[1].Key)
	assert.Equal(t, "{virtual: 128, resident: 64}", mem.String())
}

func TestDocument_Lookup(t *testing.T) {
	doc := Document{
		{Key: "a", Value: Scalar("1")},
		{Key: "b", Value: Nested(Document{{Key: "c", Value: Scalar("2")}})},
	}

	v, ok := doc.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "{c: 2}", v.String())

	_, ok = doc.Lookup("missing")
	assert.False(t, ok)
}

func TestDocumentIsMaster_Role(t *testing.T) {
	yes, no := true, false

	tests := map[string]struct {
		doc         documentIsMaster
		wantRouting bool
		wantPrimary bool
	}{
		"mongos": {
			doc:         documentIsMaster{IsMaster: true, Msg: "isdbgrid"},
			wantRouting: true,
		},
		"replica set primary": {
			doc:         documentIsMaster{IsMaster: true, Secondary: &no, SetName: "rs0"},
			wantPrimary: true,
		},
		"replica set secondary": {
			doc: documentIsMaster{IsMaster: false, Secondary: &yes, SetName: "rs0"},
		},
		"hello reply from primary": {
			doc:         documentIsMaster{IsWritablePrimary: true, Secondary: &no, SetName: "rs0"},
			wantPrimary: true,
		},
		"hello reply from mongos": {
			doc:         documentIsMaster{IsWritablePrimary: true, Msg: "isdbgrid"},
			wantRouting: true,
		},
		"replica set member in recovery": {
			doc: documentIsMaster{IsMaster: false, Secondary: &no, SetName: "rs0"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.wantRouting, test.doc.isRoutingNode())
			assert.Equal(t, test.wantPrimary, test.doc.isPrimary())
		})
	}
}

func TestDocumentIsMaster_Decode(t *testing.T) {
	tests := map[string]struct {
		data        []byte
		wantRouting bool
		wantPrimary bool
	}{
		"mongos":    {data: dataVer6IsMasterMongos, wantRouting: true},
		"primary":   {data: dataVer6IsMasterPrimary, wantPrimary: true},
		"secondary": {data: dataVer6IsMasterSecondary},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var doc documentIsMaster
			require.NoError(t, bson.UnmarshalExtJSON(test.data, false, &doc))

			assert.Equal(t, test.wantRouting, doc.isRoutingNode())
			assert.Equal(t, test.wantPrimary, doc.isPrimary())
		})
	}
}

func newTestDocument(t *testing.T, d bson.D) Document {
	t.Helper()

	bs, err := bson.Marshal(d)
	require.NoError(t, err)

	doc, err := documentFromRaw(bs)
	require.NoError(t, err)

	return doc
}

func loadTestDocument(t *testing.T, data []byte) Document {
	t.Helper()

	var raw bson.Raw
	require.NoError(t, bson.UnmarshalExtJSON(data, false, &raw))

	doc, err := documentFromRaw(raw)
	require.NoError(t, err)

	return doc
}
