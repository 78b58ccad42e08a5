// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

type valueKind uint8

const (
	kindScalar valueKind = iota
	kindDocument
)

// Value is a status document value: either a scalar kept in its rendered
// form, or a nested Document.
type Value struct {
	kind valueKind
	text string
	doc  Document
}

func Scalar(text string) Value { return Value{kind: kindScalar, text: text} }

func Nested(doc Document) Value { return Value{kind: kindDocument, doc: doc} }

func (v Value) IsDocument() bool { return v.kind == kindDocument }

// Document returns the nested document, nil for scalars.
func (v Value) Document() Document { return v.doc }

// String renders scalars as-is and documents in their default "{k: v}" form.
func (v Value) String() string {
	if v.kind == kindDocument {
		return v.doc.String()
	}
	return v.text
}

type Field struct {
	Key   string
	Value Value
}

// Document is an ordered mapping; field order is the server's reply order.
type Document []Field

func (d Document) Lookup(key string) (Value, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (d Document) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Key)
		sb.WriteString(": ")
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func documentFromRaw(raw bson.Raw) (Document, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, err
	}

	doc := make(Document, 0, len(elems))
	for _, elem := range elems {
		v, err := valueFromRaw(elem.Value())
		if err != nil {
			return nil, fmt.Errorf("field '%s': %v", elem.Key(), err)
		}
		doc = append(doc, Field{Key: elem.Key(), Value: v})
	}

	return doc, nil
}

func valueFromRaw(rv bson.RawValue) (Value, error) {
	switch rv.Type {
	case bson.TypeEmbeddedDocument:
		doc, err := documentFromRaw(rv.Document())
		if err != nil {
			return Value{}, err
		}
		return Nested(doc), nil
	case bson.TypeArray:
		values, err := rv.Array().Values()
		if err != nil {
			return Value{}, err
		}
		parts := make([]string, 0, len(values))
		for _, item := range values {
			v, err := valueFromRaw(item)
			if err != nil {
				return Value{}, err
			}
			parts = append(parts, v.String())
		}
		return Scalar("[" + strings.Join(parts, ", ") + "]"), nil
	default:
		return Scalar(formatScalar(rv)), nil
	}
}

func formatScalar(rv bson.RawValue) string {
	switch rv.Type {
	case bson.TypeDouble:
		return strconv.FormatFloat(rv.Double(), 'f', -1, 64)
	case bson.TypeInt32:
		return strconv.FormatInt(int64(rv.Int32()), 10)
	case bson.TypeInt64:
		return strconv.FormatInt(rv.Int64(), 10)
	case bson.TypeBoolean:
		return strconv.FormatBool(rv.Boolean())
	case bson.TypeString:
		return rv.StringValue()
	case bson.TypeDateTime:
		return rv.Time().UTC().Format(timeLayout)
	case bson.TypeTimestamp:
		t, _ := rv.Timestamp()
		return strconv.FormatUint(uint64(t), 10)
	case bson.TypeObjectID:
		return rv.ObjectID().Hex()
	case bson.TypeDecimal128:
		return rv.Decimal128().String()
	case bson.TypeNull, bson.TypeUndefined:
		return ""
	default:
		return rv.String()
	}
}

// https://www.mongodb.com/docs/manual/reference/command/replSetGetStatus/
type ReplicaSetStatus struct {
	Set     string             `bson:"set"`
	Date    time.Time          `bson:"date"`
	Members []ReplicaSetMember `bson:"members"`
}

type ReplicaSetMember struct {
	Name       string    `bson:"name"` // host[:port]
	State      int       `bson:"state"`
	Health     int       `bson:"health"`
	OptimeDate time.Time `bson:"optimeDate"`
}

// Reply of both isMaster and hello, the latter reports isWritablePrimary instead of ismaster.
// https://www.mongodb.com/docs/manual/reference/command/hello/
type documentIsMaster struct {
	IsMaster          bool   `bson:"ismaster"`
	IsWritablePrimary bool   `bson:"isWritablePrimary"`
	Secondary         *bool  `bson:"secondary"` // absent on mongos and standalone mongod
	SetName           string `bson:"setName"`
	Msg               string `bson:"msg"`
}

func (d documentIsMaster) writable() bool {
	return d.IsMaster || d.IsWritablePrimary
}

// isRoutingNode reports a node without replica set identity: a mongos (or a
// standalone mongod, which answers the same way).
func (d documentIsMaster) isRoutingNode() bool {
	return d.writable() && d.Secondary == nil
}

func (d documentIsMaster) isPrimary() bool {
	return d.writable() && d.Secondary != nil && !*d.Secondary
}
