package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/knightjoel/zpark/core"
)

type countingResolver struct {
	mu     sync.Mutex
	calls  int
	people map[string]core.Person
	err    error
}

func (r *countingResolver) ResolvePerson(_ context.Context, personID string) (core.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return core.Person{}, r.err
	}
	person, ok := r.people[personID]
	if !ok {
		return core.Person{}, errors.New("identity: no such person")
	}
	return person, nil
}

func (r *countingResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestResolvePersonCachesProfile(t *testing.T) {
	base := &countingResolver{people: map[string]core.Person{
		"person-9": {ID: "person-9", Emails: []string{"jdoe@example.net"}, DisplayName: "J Doe"},
	}}
	resolver, err := NewCachedResolver(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	for i := 0; i < 3; i++ {
		person, err := resolver.ResolvePerson(context.Background(), "person-9")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if person.Email() != "jdoe@example.net" {
			t.Fatalf("unexpected person %+v", person)
		}
	}
	if base.callCount() != 1 {
		t.Fatalf("expected one backend fetch, got %d", base.callCount())
	}
}

func TestResolvePersonErrorNotCached(t *testing.T) {
	base := &countingResolver{err: errors.New("spark down")}
	resolver, err := NewCachedResolver(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	if _, err := resolver.ResolvePerson(context.Background(), "person-9"); err == nil {
		t.Fatal("expected backend error to propagate")
	}

	base.err = nil
	base.people = map[string]core.Person{"person-9": {ID: "person-9"}}
	if _, err := resolver.ResolvePerson(context.Background(), "person-9"); err != nil {
		t.Fatalf("expected recovery after backend error, got %v", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	base := &countingResolver{people: map[string]core.Person{
		"person-9": {ID: "person-9", DisplayName: "J Doe"},
	}}
	resolver, err := NewCachedResolver(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	if _, err := resolver.ResolvePerson(context.Background(), "person-9"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := resolver.Invalidate(context.Background(), "person-9"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := resolver.ResolvePerson(context.Background(), "person-9"); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if base.callCount() != 2 {
		t.Fatalf("expected refetch after invalidation, got %d calls", base.callCount())
	}
}

func TestPersonCacheKey(t *testing.T) {
	key, err := PersonCacheKey("person/9")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "zpark::person::v1::person%2F9" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := PersonCacheKey("  "); err == nil {
		t.Fatal("expected error for blank id")
	}
}
