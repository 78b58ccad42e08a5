// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/netdata/zbxmongo/logger"
)

const (
	// serverStatus and isMaster are namespace independent, "test" is what the
	// mongo shell defaults to.
	dbGeneral = "test"
	dbAdmin   = "admin"
)

var errNotConnected = errors.New("mongo client is not connected")

type mongoConn interface {
	serverStatus(ctx context.Context) (Document, error)
	replSetGetStatus(ctx context.Context) (*ReplicaSetStatus, error)
	isMaster(ctx context.Context, hello bool) (*documentIsMaster, error)
	initClient(ctx context.Context, uri string, timeout time.Duration) error
	ping(ctx context.Context) error
	close() error
}

type mongoClient struct {
	*logger.Logger

	client  *mongo.Client
	timeout time.Duration
}

func (c *mongoClient) serverStatus(ctx context.Context) (Document, error) {
	cmd := bson.D{
		{Key: "serverStatus", Value: 1},
		{Key: "repl", Value: 1},
	}

	raw, err := c.runCommand(ctx, dbGeneral, cmd)
	if err != nil {
		return nil, err
	}

	return documentFromRaw(raw)
}

func (c *mongoClient) replSetGetStatus(ctx context.Context) (*ReplicaSetStatus, error) {
	cmd := bson.D{{Key: "replSetGetStatus", Value: 1}}

	raw, err := c.runCommand(ctx, dbAdmin, cmd)
	if err != nil {
		return nil, err
	}

	var status ReplicaSetStatus
	if err := bson.Unmarshal(raw, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

func (c *mongoClient) isMaster(ctx context.Context, hello bool) (*documentIsMaster, error) {
	cmd := bson.D{{Key: "isMaster", Value: 1}}
	if hello {
		cmd = bson.D{{Key: "hello", Value: 1}}
	}

	raw, err := c.runCommand(ctx, dbGeneral, cmd)
	if err != nil {
		return nil, err
	}

	var res documentIsMaster
	if err := bson.Unmarshal(raw, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

func (c *mongoClient) runCommand(ctx context.Context, db string, cmd bson.D) (bson.Raw, error) {
	if c.client == nil {
		return nil, errNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.Debugf("running command %v on '%s'", cmd, db)

	raw, err := c.client.Database(db).RunCommand(ctx, cmd).Raw()
	if err != nil {
		return nil, err
	}

	c.Debugf("command %s reply: %s", cmd[0].Key, raw)

	return raw, nil
}

func (c *mongoClient) initClient(ctx context.Context, uri string, timeout time.Duration) error {
	if c.client != nil {
		return nil
	}

	c.timeout = timeout

	opts := options.Client().
		ApplyURI(uri).
		SetAppName("zbxmongo").
		SetDirect(true).
		SetReadPreference(readpref.SecondaryPreferred()).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	ctxConn, cancelConn := context.WithTimeout(ctx, c.timeout)
	defer cancelConn()

	client, err := mongo.Connect(ctxConn, opts)
	if err != nil {
		return err
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, c.timeout)
	defer cancelPing()

	if err := client.Ping(ctxPing, nil); err != nil {
		_ = client.Disconnect(ctxConn)
		return err
	}

	c.client = client

	return nil
}

func (c *mongoClient) ping(ctx context.Context) error {
	if c.client == nil {
		return errNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) close() error {
	if c.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.client.Disconnect(ctx)
	c.client = nil

	return err
}
