package credentials

import (
	"context"
)

// KeyValueStore is the subset of the durable key/value repository the credential surfaces need.
type KeyValueStore interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// DurableSurface keeps the credential in the local key/value store under [TokenKey].
type DurableSurface struct {
	kv KeyValueStore
}

// NewDurableSurface creates a [DurableSurface].
func NewDurableSurface(kv KeyValueStore) *DurableSurface {
	return &DurableSurface{kv: kv}
}

func (d *DurableSurface) Name() string { return "durable" }

func (d *DurableSurface) Set(ctx context.Context, token string) error {
	return d.kv.SetString(ctx, TokenKey, token)
}

func (d *DurableSurface) Get(ctx context.Context) (string, error) {
	return d.kv.GetString(ctx, TokenKey)
}

func (d *DurableSurface) Clear(ctx context.Context) error {
	return d.kv.Delete(ctx, TokenKey)
}
