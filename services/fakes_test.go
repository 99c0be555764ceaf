package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"party_server/config"
)

// fakeStore is an in-memory Store with the same key and transaction
// semantics as the DynamoDB adapter, so services run unchanged in tests.
type fakeStore struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]map[string]types.AttributeValue{}}
}

func fkey(table, pk, sk string) string { return table + "|" + pk + "|" + sk }

func (f *fakeStore) GetItem(_ context.Context, table, pk, sk string, out interface{}) (bool, error) {
	f.mu.Lock()
	item, ok := f.items[fkey(table, pk, sk)]
	f.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeStore) PutItem(_ context.Context, table string, item interface{}) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.items[fkey(table, attrString(marshaled, "pk"), attrString(marshaled, "sk"))] = marshaled
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) DeleteItem(_ context.Context, table, pk, sk string) error {
	f.mu.Lock()
	delete(f.items, fkey(table, pk, sk))
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) QueryPrefix(_ context.Context, table, pk, skPrefix string, out interface{}) error {
	return f.query(table, pk, func(sk string) bool { return strings.HasPrefix(sk, skPrefix) }, out)
}

func (f *fakeStore) QueryRange(_ context.Context, table, pk, skFrom, skTo string, out interface{}) error {
	return f.query(table, pk, func(sk string) bool { return sk >= skFrom && sk <= skTo }, out)
}

func (f *fakeStore) query(table, pk string, match func(sk string) bool, out interface{}) error {
	prefix := table + "|" + pk + "|"

	f.mu.Lock()
	type hit struct {
		sk   string
		item map[string]types.AttributeValue
	}
	var hits []hit
	for key, item := range f.items {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		sk := strings.TrimPrefix(key, prefix)
		if match(sk) {
			hits = append(hits, hit{sk: sk, item: item})
		}
	}
	f.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].sk < hits[j].sk })
	list := make([]map[string]types.AttributeValue, len(hits))
	for i, h := range hits {
		list[i] = h.item
	}
	return attributevalue.UnmarshalListOfMaps(list, out)
}

func (f *fakeStore) TransactWrite(_ context.Context, ops ...TransactOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Conditions are checked before anything is applied, so a lost claim
	// leaves the store untouched, matching TransactWriteItems.
	for _, op := range ops {
		if op.isDelete && op.delCond {
			if _, ok := f.items[fkey(op.table, op.delPK, op.delSK)]; !ok {
				return ErrConditionFailed
			}
		}
		if op.put != nil && op.putCond {
			marshaled, err := attributevalue.MarshalMap(op.put)
			if err != nil {
				return err
			}
			if _, ok := f.items[fkey(op.table, attrString(marshaled, "pk"), attrString(marshaled, "sk"))]; ok {
				return ErrConditionFailed
			}
		}
	}

	for _, op := range ops {
		switch {
		case op.put != nil:
			marshaled, err := attributevalue.MarshalMap(op.put)
			if err != nil {
				return err
			}
			f.items[fkey(op.table, attrString(marshaled, "pk"), attrString(marshaled, "sk"))] = marshaled
		case op.isDelete:
			delete(f.items, fkey(op.table, op.delPK, op.delSK))
		case op.isExpiry:
			key := fkey(op.table, op.expiryPK, op.expirySK)
			item, ok := f.items[key]
			if !ok {
				item = map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: op.expiryPK},
					"sk": &types.AttributeValueMemberS{Value: op.expirySK},
				}
				f.items[key] = item
			}
			item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(op.expiresAt, 10)}
		}
	}
	return nil
}

func (f *fakeStore) has(table, pk, sk string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[fkey(table, pk, sk)]
	return ok
}

func attrString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// fakeBus records every published event.
type fakeBus struct {
	mu     sync.Mutex
	events []Event
}

func (b *fakeBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(func(Event)) func() { return func() {} }

func (b *fakeBus) ofType(eventType string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		StoreTimeoutMs:     2000,
		PartyTTLSecond:     7200,
		InviteTTLSecond:    300,
		MaxPartySize:       5,
		QueueTimeoutMs:     300000,
		InitialEloRange:    100,
		EloRangeStep:       50,
		EloRangeIntervalMs: 15000,
		MaxEloRange:        400,
		TierTolerance:      2,
	}
}

type testEnv struct {
	store       *fakeStore
	bus         *fakeBus
	cfg         *config.Config
	party       *PartyService
	invites     *InviteService
	matchmaking *MatchmakingService
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	bus := &fakeBus{}
	cfg := testConfig()
	party := NewPartyService(store, bus, cfg)
	return &testEnv{
		store:       store,
		bus:         bus,
		cfg:         cfg,
		party:       party,
		invites:     NewInviteService(store, bus, party, cfg),
		matchmaking: NewMatchmakingService(store, bus, cfg),
	}
}

// at pins a service clock to a fixed instant.
func at(t time.Time) func() time.Time { return func() time.Time { return t } }
