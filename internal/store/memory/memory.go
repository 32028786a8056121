// Package memory keeps collections in process memory. It backs tests and the
// "memory" store driver.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spigell/resume-updater/internal/store"
)

type DB struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

func New() *DB {
	return &DB{collections: make(map[string]*Collection)}
}

func (d *DB) Collection(name string) store.Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		c = &Collection{name: name, docs: make(map[key]json.RawMessage)}
		d.collections[name] = c
	}
	return c
}

type key struct {
	partition string
	id        string
}

type Collection struct {
	name string

	mu    sync.RWMutex
	docs  map[key]json.RawMessage
	order []key
}

func (c *Collection) Create(ctx context.Context, item store.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(item.Body)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", c.name, item.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{partition: item.PartitionKey, id: item.ID}
	if _, ok := c.docs[k]; ok {
		return fmt.Errorf("%s/%s: %w", c.name, item.ID, store.ErrDuplicate)
	}
	c.docs[k] = body
	c.order = append(c.order, k)
	return nil
}

func (c *Collection) Replace(ctx context.Context, item store.Item, opts ...store.ReplaceOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(item.Body)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", c.name, item.ID, err)
	}
	o := store.ApplyReplaceOptions(opts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{partition: item.PartitionKey, id: item.ID}
	current, ok := c.docs[k]
	if !ok {
		return fmt.Errorf("%s/%s: %w", c.name, item.ID, store.ErrNotFound)
	}

	if o.IfVersion != nil {
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(current, &stored); err != nil {
			return fmt.Errorf("decode %s/%s: %w", c.name, item.ID, err)
		}
		if stored.Version != *o.IfVersion {
			return fmt.Errorf("%s/%s: stored version %d, expected %d: %w", c.name, item.ID, stored.Version, *o.IfVersion, store.ErrVersionConflict)
		}
	}

	c.docs[k] = body
	return nil
}

func (c *Collection) Get(ctx context.Context, partition, id string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	doc, ok := c.docs[key{partition: partition, id: id}]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s/%s: %w", c.name, id, store.ErrNotFound)
	}
	return json.Unmarshal(doc, out)
}

func (c *Collection) Query(ctx context.Context, partition string, conds ...store.Condition) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []json.RawMessage
	for _, k := range c.order {
		if partition != "" && k.partition != partition {
			continue
		}
		doc, ok := c.docs[k]
		if !ok {
			continue
		}

		var body map[string]any
		if err := json.Unmarshal(doc, &body); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c.name, k.id, err)
		}

		matched := true
		for _, cond := range conds {
			if !cond.Match(body) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, append(json.RawMessage(nil), doc...))
		}
	}
	return out, nil
}

func (c *Collection) Delete(ctx context.Context, partition, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{partition: partition, id: id}
	if _, ok := c.docs[k]; !ok {
		return fmt.Errorf("%s/%s: %w", c.name, id, store.ErrNotFound)
	}
	delete(c.docs, k)
	for i, existing := range c.order {
		if existing == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}
