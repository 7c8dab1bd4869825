// Package rediscache keeps a read-through copy of catalog products in Redis.
package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/hdcontrol/internal/domain/product"
)

const keyPrefix = "hdcontrol:product:"

var _ product.Cache = (*ProductCache)(nil)

// ProductCache implements product.Cache on Redis strings holding JSON.
type ProductCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewProductCache returns a cache whose entries expire after ttl.
func NewProductCache(client redis.Cmdable, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

func key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// Get returns the cached product, or (nil, nil) on a miss.
func (c *ProductCache) Get(ctx context.Context, id int64) (*product.Product, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get")
	}
	p, err := decodeProduct(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode product %d", id)
	}
	return p, nil
}

func (c *ProductCache) Set(ctx context.Context, p *product.Product) error {
	if err := c.client.Set(ctx, key(p.ID), encodeProduct(p), c.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

func (c *ProductCache) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

func encodeProduct(p *product.Product) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.ObjEnd()
	return e.Bytes()
}

func decodeProduct(data []byte) (*product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, k []byte) error {
		var err error
		switch string(k) {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "brand":
			p.Brand, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
