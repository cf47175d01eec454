// Package identity resolves chat person ids into profiles, with a
// read-through cache in front of the platform API. Webhook intake
// resolves the same few senders over and over; the cache keeps that
// off the wire.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/knightjoel/zpark/core"
)

const personCacheKeyPrefix = "zpark::person::v1"

type CachedResolver struct {
	base  core.PersonResolver
	cache repositorycache.CacheService
}

func NewCachedResolver(base core.PersonResolver, cacheService repositorycache.CacheService) (*CachedResolver, error) {
	if base == nil {
		return nil, resolverConfigError("base person resolver is required")
	}
	if cacheService == nil {
		return nil, resolverConfigError("cache service is required")
	}
	return &CachedResolver{base: base, cache: cacheService}, nil
}

// PersonCacheKey returns the deterministic cache key for a person id:
// zpark::person::v1::<id> with the id URL-path escaped.
func PersonCacheKey(personID string) (string, error) {
	trimmed := strings.TrimSpace(personID)
	if trimmed == "" {
		return "", resolverInputError("person id is required")
	}
	return personCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (r *CachedResolver) ResolvePerson(ctx context.Context, personID string) (core.Person, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Person{}, resolverConfigError("cached resolver is not configured")
	}
	cacheKey, err := PersonCacheKey(personID)
	if err != nil {
		return core.Person{}, err
	}

	person, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (core.Person, error) {
		fetched, fetchErr := r.base.ResolvePerson(ctx, strings.TrimSpace(personID))
		if fetchErr != nil {
			return core.Person{}, fetchErr
		}
		return clonePerson(fetched), nil
	})
	if err != nil {
		return core.Person{}, err
	}
	return clonePerson(person), nil
}

// Invalidate drops a cached profile, typically after the platform
// reports the person changed.
func (r *CachedResolver) Invalidate(ctx context.Context, personID string) error {
	if r == nil || r.cache == nil {
		return resolverConfigError("cached resolver is not configured")
	}
	cacheKey, err := PersonCacheKey(personID)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}

func clonePerson(person core.Person) core.Person {
	cloned := person
	cloned.Emails = append([]string(nil), person.Emails...)
	return cloned
}

func resolverConfigError(message string) error {
	return goerrors.New("identity: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func resolverInputError(message string) error {
	return goerrors.New(fmt.Sprintf("identity: %s", message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

var _ core.PersonResolver = (*CachedResolver)(nil)
