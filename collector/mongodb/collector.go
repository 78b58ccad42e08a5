// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/blang/semver/v4"

	"github.com/netdata/zbxmongo/logger"
)

type Config struct {
	// Hostname is the reporting identity written in every item, not the server's node name.
	Hostname   string
	Host       string
	Port       int
	Timeout    time.Duration
	RetryDelay time.Duration
}

func (c Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) uri() string {
	return "mongodb://" + c.address() + "/?directConnection=true"
}

// Collector gathers serverStatus and replica set state from one mongod/mongos.
// Every database call is retried after RetryDelay until it succeeds or ctx is done.
type Collector struct {
	*logger.Logger
	Config

	conn    mongoConn
	version *semver.Version
}

func New(cfg Config, log *logger.Logger) *Collector {
	return &Collector{
		Logger: log,
		Config: cfg,
		conn:   &mongoClient{Logger: log},
	}
}

func (c *Collector) verifyConfig() error {
	if c.Hostname == "" {
		return errors.New("reporting hostname is empty")
	}
	if c.Host == "" {
		return errors.New("database host is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	return nil
}

// Connect opens the connection, retrying until the server answers a ping.
func (c *Collector) Connect(ctx context.Context) error {
	if err := c.verifyConfig(); err != nil {
		return fmt.Errorf("config validation: %v", err)
	}

	c.Debugf("connecting to MongoDB server %s", c.address())

	// the server may have been upgraded while we were away
	c.version = nil

	return c.retry(ctx, "connect", func(ctx context.Context) error {
		return c.conn.initClient(ctx, c.uri(), c.Timeout)
	})
}

// EnsureConnected pings the server and reconnects when the connection is gone.
// It reports whether a reconnect took place.
func (c *Collector) EnsureConnected(ctx context.Context) (bool, error) {
	err := c.conn.ping(ctx)
	if err == nil {
		return false, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	c.Warningf("connection to MongoDB server (%s) is not active (%v), reconnecting", c.address(), err)

	if err := c.conn.close(); err != nil {
		c.Debugf("closing stale connection: %v", err)
	}

	return true, c.Connect(ctx)
}

func (c *Collector) ServerStatus(ctx context.Context) (Document, error) {
	var doc Document
	err := c.retry(ctx, "serverStatus", func(ctx context.Context) (err error) {
		doc, err = c.conn.serverStatus(ctx)
		return err
	})
	return doc, err
}

// ReplicaStatus must not be called for routing nodes, they have no replica set.
func (c *Collector) ReplicaStatus(ctx context.Context) (*ReplicaSetStatus, error) {
	var status *ReplicaSetStatus
	err := c.retry(ctx, "replSetGetStatus", func(ctx context.Context) (err error) {
		status, err = c.conn.replSetGetStatus(ctx)
		return err
	})
	return status, err
}

// IsRoutingNode reports a node that answers isMaster with ismaster=true and no
// secondary field (mongos, or a mongod outside any replica set).
func (c *Collector) IsRoutingNode(ctx context.Context) (bool, error) {
	role, err := c.nodeRole(ctx)
	if err != nil {
		return false, err
	}
	return role.isRoutingNode(), nil
}

// IsPrimary reports a replica set member that is currently primary.
func (c *Collector) IsPrimary(ctx context.Context) (bool, error) {
	role, err := c.nodeRole(ctx)
	if err != nil {
		return false, err
	}
	return role.isPrimary(), nil
}

func (c *Collector) nodeRole(ctx context.Context) (*documentIsMaster, error) {
	var role *documentIsMaster
	hello := supportsHello(c.version)
	op := "isMaster"
	if hello {
		op = "hello"
	}
	err := c.retry(ctx, op, func(ctx context.Context) (err error) {
		role, err = c.conn.isMaster(ctx, hello)
		return err
	})
	return role, err
}

func (c *Collector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.close()
}

// retry runs fn until it succeeds. The delay is fixed and attempts are unlimited;
// the only way out on failure is ctx cancellation.
func (c *Collector) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.Warningf("could not connect to MongoDB server (%s): %s: %v, retrying in %s",
			c.address(), op, err, c.RetryDelay)

		if err := sleep(ctx, c.RetryDelay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
